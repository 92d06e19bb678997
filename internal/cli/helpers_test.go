// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// stubOllama answers /, /api/tags and /api/chat like a local Ollama.
// An empty reply makes /api/chat fail with 500.
type stubOllama struct {
	reply  string
	models []string
}

func (s stubOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		fmt.Fprint(w, "Ollama is running")

	case "/api/tags":
		type tag struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		}
		tags := make([]tag, 0, len(s.models))
		for _, m := range s.models {
			tags = append(tags, tag{Name: m, Size: 2 << 30})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": tags})

	case "/api/chat":
		var req ollama.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if s.reply == "" {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(ollama.ChatResponse{
				Model:   req.Model,
				Message: ollama.Message{Role: "assistant", Content: s.reply},
				Done:    true,
			})
			return
		}
		enc := json.NewEncoder(w)
		for _, word := range strings.SplitAfter(s.reply, " ") {
			_ = enc.Encode(ollama.ChatResponse{Message: ollama.Message{Role: "assistant", Content: word}})
		}
		_ = enc.Encode(ollama.ChatResponse{Done: true, DoneReason: "stop"})

	default:
		http.NotFound(w, r)
	}
}

func newStub(t *testing.T, s stubOllama) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

// closedURL returns a base URL nothing listens on.
func closedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// isolateHome points HOME at a temp dir so ~/.dxchat is never touched.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// newTestApp builds an App for baseURL without reading any config file.
func newTestApp(t *testing.T, baseURL string, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint.URL = baseURL
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := log.New(io.Discard, "", 0)
	client, err := NewClient(cfg, logger)
	require.NoError(t, err)
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	return &App{
		Config:  cfg,
		Client:  client,
		Session: conversation.New(conversation.Config{Client: client, Options: opts, Logger: logger}),
		Logger:  logger,
	}
}
