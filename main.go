// dxchat - chat with a local Ollama model from the terminal or a browser.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/cli"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/server"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// LogFileName is where the TUI writes its log with --verbose.
const LogFileName = "dxchat.log"

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	server.Version = Version
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches one command and returns the process exit code.
func run(argv []string) int {
	cmd, args, err := cli.Parse(argv)
	if err == nil {
		err = dispatch(context.Background(), cmd, args)
	}
	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

func dispatch(ctx context.Context, cmd cli.Command, args cli.Args) error {
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return nil
	case cli.CmdVersion:
		return cli.HandleVersion(args, os.Stdout)
	case cli.CmdConfig:
		return cli.HandleConfig(args)
	case cli.CmdDoctor:
		return cli.HandleDoctor(ctx, args)
	}

	logOut, closeLog := logOutput(cmd, args)
	defer closeLog()

	app, err := cli.NewApp(args, logOut)
	if err != nil {
		return err
	}

	switch cmd {
	case cli.CmdChat:
		return cli.HandleChatCommand(ctx, app, args)
	case cli.CmdAsk:
		return cli.HandleAskCommand(ctx, app, args)
	case cli.CmdServe:
		return cli.HandleServe(ctx, app, args)
	default:
		return cli.HandleTUI(ctx, app, args)
	}
}

// logOutput picks where request-cycle logs go. The bridge logs to stderr
// unless --quiet; the TUI logs to a file with --verbose since it owns the
// screen; the other commands log to stderr with --verbose.
func logOutput(cmd cli.Command, args cli.Args) (io.Writer, func()) {
	noop := func() {}

	switch {
	case cmd == cli.CmdServe && !args.Quiet:
		return os.Stderr, noop

	case cmd == cli.CmdTUI && args.Verbose:
		dir, err := config.ConfigDir()
		if err != nil {
			return io.Discard, noop
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return io.Discard, noop
		}
		f, err := tea.LogToFile(filepath.Join(dir, LogFileName), "dxchat")
		if err != nil {
			return io.Discard, noop
		}
		return f, func() { f.Close() }

	case args.Verbose:
		return os.Stderr, noop
	}
	return io.Discard, noop
}
