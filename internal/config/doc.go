// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates dxchat configuration.
//
// Supports both TOML and JSON configuration files, with defaults,
// environment variable overrides and struct-tag validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DXCHAT_*)
//   - ~/.dxchat/config.toml, or the file given with --config
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on change:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
package config
