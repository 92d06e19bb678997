// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdServe
	CmdDoctor
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdServe:
		return "serve"
	case CmdDoctor:
		return "doctor"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Model      string
	Quiet      bool
	Verbose    bool
	JSON       bool
	Plain      bool

	// Conversation overrides; zero values leave the config untouched
	Streaming *bool
	Window    int
	Policy    string

	// Command-specific
	Query      string
	Subcommand string
	Addr       string
	Force      bool

	// Raw args after the command name
	Raw []string
}

// boolFlags never take a value.
var boolFlags = []string{
	"q", "quiet", "v", "verbose", "json", "stream", "no-stream",
	"force", "plain", "h", "help", "V", "version",
}

const usageText = `dxchat - chat with a local Ollama model

Usage:
  dxchat                      Start the terminal chat UI (default)
  dxchat chat                 Line-mode chat with history
  dxchat ask "question"       Ask a single question and print the reply
  dxchat serve                Serve the HTTP bridge for browser front ends
  dxchat doctor               Check the endpoint and list installed models
  dxchat config init|show|path
                              Write, print or locate the config file
  dxchat version              Show version information
  dxchat help                 Show this help

Global flags:
  -c, --config PATH           Config file (default ~/.dxchat/config.toml)
  -m, --model NAME            Model to use (overrides config)
      --stream / --no-stream  Read replies as NDJSON chunks or in one piece
      --window N              Transcript entries sent with each request
      --policy alert|message  How failed requests are reported
      --json                  JSON output (ask, doctor, config show)
      --plain                 Print replies as plain text, not markdown
  -q, --quiet                 Minimal output
  -v, --verbose               Log request cycles to stderr

Command flags:
  serve  --addr HOST:PORT     Listen address (overrides config)
  config init --force         Overwrite an existing config file

Environment:
  DXCHAT_ENDPOINT, DXCHAT_MODEL, DXCHAT_STREAMING, DXCHAT_HISTORY_WINDOW,
  DXCHAT_FAILURE_POLICY and the other DXCHAT_* variables override the file.

Version %s
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "dxchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// HandleVersion writes version information, as JSON with --json.
func HandleVersion(args Args, out io.Writer) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(out)
	}
	PrintVersion(out)
	return nil
}

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlags...)

	args := Args{
		ConfigPath: p.Flag("config", "c"),
		Model:      p.Flag("model", "m"),
		Quiet:      p.BoolFlag("quiet", "q"),
		Verbose:    p.BoolFlag("verbose", "v"),
		JSON:       p.BoolFlag("json"),
		Plain:      p.BoolFlag("plain"),
		Policy:     p.Flag("policy"),
		Addr:       p.Flag("addr"),
		Force:      p.BoolFlag("force"),
		Raw:        p.PositionalFrom(1),
	}

	switch {
	case p.BoolFlag("stream"):
		on := true
		args.Streaming = &on
	case p.BoolFlag("no-stream"):
		off := false
		args.Streaming = &off
	}

	if n, ok, err := p.FlagInt("window"); err != nil {
		return CmdHelp, args, NewValidationError("window", p.Flag("window"), "must be an integer")
	} else if ok {
		if n < 1 {
			return CmdHelp, args, NewValidationError("window", p.Flag("window"), "must be at least 1")
		}
		args.Window = n
	}

	if args.Policy != "" && args.Policy != "alert" && args.Policy != "message" {
		return CmdHelp, args, NewValidationError("policy", args.Policy, "must be alert or message")
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version", "V") {
		return CmdVersion, args, nil
	}

	name := strings.ToLower(p.Positional(0))
	switch name {
	case "", "tui":
		return CmdTUI, args, nil

	case "chat":
		return CmdChat, args, nil

	case "ask":
		args.Query = strings.TrimSpace(JoinPositionalArgs(p, 1))
		if args.Query == "" {
			return CmdAsk, args, ErrMissingArgument("question", `dxchat ask "What is Go?"`)
		}
		return CmdAsk, args, nil

	case "serve", "server":
		return CmdServe, args, nil

	case "doctor", "diag":
		return CmdDoctor, args, nil

	case "config":
		args.Subcommand = strings.ToLower(p.Positional(1))
		if args.Subcommand == "" {
			args.Subcommand = "show"
		}
		return CmdConfig, args, nil

	case "version":
		return CmdVersion, args, nil

	case "help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, NewValidationErrorWithExample("command", name, "unknown command", "dxchat help")
	}
}
