// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers shared by the CLI,
// the TUI and the config layer.
//
// String helpers are rune- and display-width aware so transcript text with
// multi-byte or double-width characters is never cut mid-character.
//
//	line := util.TruncateWidth(msg.Text, 40)
//	for _, l := range util.Wrap(msg.Text, width) { ... }
//
// AtomicWriteFile writes through a synced temp file and a rename, so a crash
// leaves either the old or the new file on disk.
package util
