// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - HTTP bridge command.
//
// Command: serve
// Aliases: server
//
// Examples:
//   dxchat serve                          Listen on [server] host:port
//   dxchat serve --addr 0.0.0.0:9000      Listen elsewhere
//   dxchat serve --stream --policy message

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/server"
)

// ShutdownTimeout bounds the graceful shutdown of the bridge.
const ShutdownTimeout = 10 * time.Second

// NewServer builds the HTTP bridge for app's session.
func NewServer(app *App) *server.Server {
	return server.New(server.Config{
		Session:         app.Session,
		Addr:            app.Config.Addr(),
		AllowedOrigins:  app.Config.Server.AllowedOrigins,
		RateLimitPerMin: app.Config.Server.RateLimitPerMin,
		Pinger:          app.Client,
		Logger:          app.Logger,
	})
}

// HandleServe runs the bridge until SIGINT or SIGTERM.
func HandleServe(ctx context.Context, app *App, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", app.Config.Addr())
	if err != nil {
		return NewCommandError("serve", "listen", app.Config.Addr(), err)
	}
	if !args.Quiet {
		fmt.Fprintf(os.Stderr, "%s serving on http://%s (endpoint %s, model %s)\n",
			RenderStatus("ok"), ln.Addr(), app.Config.Endpoint.URL, app.Config.Endpoint.Model)
	}
	return RunServe(ctx, app, ln)
}

// RunServe serves on ln until ctx is done, then shuts down gracefully.
// Config file changes are applied to the session while serving.
func RunServe(ctx context.Context, app *App, ln net.Listener) error {
	srv := NewServer(app)

	if err := app.WatchConfig(ctx, app.Session.SetOptions); err != nil {
		app.Logger.Printf("CONFIG_WATCH_FAILED | path=%s error=%q", app.ConfigPath, err.Error())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return NewCommandError("serve", "run", "server stopped", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return NewCommandError("serve", "shutdown", "graceful shutdown failed", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
