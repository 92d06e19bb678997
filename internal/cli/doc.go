// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the dxchat commands.
//
// # Key Types
//
//   - Command: the command selected on the command line
//   - Args: parsed global and command-specific flags
//   - App: configuration, inference client and conversation session shared
//     by the commands that talk to the endpoint
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//	app, err := cli.NewApp(args, os.Stderr)
//	...
//	err = cli.HandleAskCommand(ctx, app, args)
//
// # Commands
//
//   - tui (default): full-screen chat
//   - chat: line-mode chat with input history
//   - ask: one question, one reply
//   - serve: HTTP bridge for browser front ends
//   - doctor: endpoint and configuration checks
//   - config: show, init or locate the config file
//
// Commands return errors and never print them. GetExitCode maps an error to
// the process exit code. ask, doctor, config and version accept --json.
package cli
