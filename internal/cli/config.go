// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)    Print the effective configuration as TOML
//   init              Write the built-in defaults to the config file
//   path              Print the config file path
//
// Examples:
//   dxchat config init
//   dxchat config init --force --config ./dxchat.toml
//   dxchat config show --json

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
)

// HandleConfig runs a config subcommand, writing to stdout.
func HandleConfig(args Args) error {
	return RunConfig(args, os.Stdout)
}

// RunConfig runs a config subcommand, writing to out.
func RunConfig(args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args, out)
	case "init":
		return configInit(args, out)
	case "path":
		return configPath(args, out)
	default:
		return NewValidationErrorWithExample("config subcommand", args.Subcommand,
			"must be show, init or path", "dxchat config show")
	}
}

// targetPath is --config, or the default path.
func targetPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

func configShow(args Args, out io.Writer) error {
	cfg, path, err := LoadConfig(args.ConfigPath)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config show", ConfigData{
			Path:   path,
			Exists: path != "",
			Config: cfg,
		}).Write(out)
	}

	data, err := cfg.Encode(false)
	if err != nil {
		return NewCommandError("config", "show", "encode", err)
	}
	if path != "" && !args.Quiet {
		fmt.Fprintln(out, DimStyle.Render("# loaded from "+path))
	}
	_, err = out.Write(data)
	return err
}

func configInit(args Args, out io.Writer) error {
	path, err := targetPath(args)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(path); statErr == nil && !args.Force {
		return NewCommandError("config", "init", "file already exists (use --force to overwrite)",
			&os.PathError{Op: "init", Path: path, Err: os.ErrExist})
	} else if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return &ConfigError{Path: path, Err: statErr}
	}

	if err := config.Save(config.Default(), path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Write(out)
	}
	fmt.Fprintf(out, "%s wrote %s\n", RenderStatus("ok"), path)
	return nil
}

func configPath(args Args, out io.Writer) error {
	path, err := targetPath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if args.JSON {
		return NewJSONResponse("config path", ConfigData{Path: path, Exists: exists}).Write(out)
	}
	fmt.Fprintln(out, path)
	return nil
}
