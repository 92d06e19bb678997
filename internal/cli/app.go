// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring shared by every command that talks to the endpoint.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// App holds the configuration, client and conversation a command runs with.
type App struct {
	Config *config.Config

	// ConfigPath is the file the config was read from, "" for built-in defaults
	ConfigPath string

	Client  *ollama.Client
	Session *conversation.Session
	Logger  *log.Logger

	args Args
}

// NewApp loads the configuration, applies the flag overrides in args and
// builds the client and session. Logs go to logOut, or nowhere when nil.
func NewApp(args Args, logOut io.Writer) (*App, error) {
	cfg, path, err := LoadConfig(args.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := ApplyOverrides(cfg, args); err != nil {
		return nil, err
	}

	if logOut == nil {
		logOut = io.Discard
	}
	logger := log.New(logOut, "", log.LstdFlags)

	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	session := conversation.New(conversation.Config{
		Client:  client,
		Options: opts,
		Logger:  logger,
	})

	return &App{
		Config:     cfg,
		ConfigPath: path,
		Client:     client,
		Session:    session,
		Logger:     logger,
		args:       args,
	}, nil
}

// LoadConfig reads path, or the default file when path is empty. It returns
// the path actually read, which is "" when only defaults were used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, "", &ConfigError{Path: path, Err: err}
		}
		return cfg, path, nil
	}

	cfg, err := config.Load()
	if err != nil {
		def, _ := config.DefaultPath()
		return nil, "", &ConfigError{Path: def, Err: err}
	}

	def, err := config.DefaultPath()
	if err != nil {
		return cfg, "", nil
	}
	if _, statErr := os.Stat(def); statErr != nil {
		return cfg, "", nil
	}
	return cfg, def, nil
}

// ApplyOverrides applies command-line flags on top of cfg and revalidates.
func ApplyOverrides(cfg *config.Config, args Args) error {
	if args.Model != "" {
		cfg.Endpoint.Model = args.Model
	}
	if args.Streaming != nil {
		cfg.Conversation.Streaming = *args.Streaming
	}
	if args.Window > 0 {
		cfg.Conversation.HistoryWindow = args.Window
	}
	if args.Policy != "" {
		cfg.Conversation.FailurePolicy = args.Policy
	}
	if args.Addr != "" {
		host, port, err := splitAddr(args.Addr)
		if err != nil {
			return NewValidationErrorWithExample("addr", args.Addr, err.Error(), "dxchat serve --addr 127.0.0.1:8787")
		}
		cfg.Server.Host, cfg.Server.Port = host, port
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// NewClient builds the inference client described by cfg.
func NewClient(cfg *config.Config, logger *log.Logger) (*ollama.Client, error) {
	schema, err := ollama.ParseSchema(cfg.Endpoint.ResponseSchema)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Endpoint.URL,
		Model:   cfg.Endpoint.Model,
		Timeout: cfg.Timeout(),
		Schema:  schema,
		Logger:  logger,
	}), nil
}

// OptionsFromConfig derives the request cycle options from cfg.
func OptionsFromConfig(cfg *config.Config) (conversation.Options, error) {
	policy, err := conversation.ParsePolicy(cfg.Conversation.FailurePolicy)
	if err != nil {
		return conversation.Options{}, &ConfigError{Err: err}
	}
	return conversation.Options{
		Model:         cfg.Endpoint.Model,
		Window:        cfg.Conversation.HistoryWindow,
		Mode:          ollama.ModeFor(cfg.Conversation.Streaming),
		FailurePolicy: policy,
	}, nil
}

// WatchConfig reloads the config file on change and passes the new options,
// with the command-line overrides reapplied, to fn. Without a config file
// there is nothing to watch and WatchConfig returns nil.
//
// Only conversation options are reloaded; the endpoint URL and server
// settings need a restart.
func (a *App) WatchConfig(ctx context.Context, fn func(conversation.Options)) error {
	if a.ConfigPath == "" {
		return nil
	}
	return config.Watch(ctx, a.ConfigPath, func(cfg *config.Config, err error) {
		if err == nil {
			err = ApplyOverrides(cfg, a.args)
		}
		var opts conversation.Options
		if err == nil {
			opts, err = OptionsFromConfig(cfg)
		}
		if err != nil {
			a.Logger.Printf("CONFIG_RELOAD_FAILED | path=%s error=%q", a.ConfigPath, err.Error())
			return
		}
		a.Logger.Printf("CONFIG_RELOADED | path=%s model=%s window=%d mode=%s policy=%s",
			a.ConfigPath, opts.Model, opts.Window, opts.Mode, opts.FailurePolicy)
		fn(opts)
	})
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port must be 1-65535")
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}

// IsConfigError reports whether err came from loading or validating config.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
