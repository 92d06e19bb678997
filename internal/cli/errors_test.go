// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

func TestGetExitCode(t *testing.T) {
	timeout := &ollama.ClientError{Type: ollama.ErrTypeTimeout, Message: "request timed out", Cause: context.DeadlineExceeded}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("window", "0", "must be at least 1"), ExitUsageError},
		{"config", &ConfigError{Path: "x.toml", Err: errors.New("bad")}, ExitConfigError},
		{"config field errors", config.ValidateErrors{{Field: "endpoint.url", Message: "required"}}, ExitConfigError},
		{"not found", NewNotFoundError("model", "llama3"), ExitNotFoundError},
		{"timeout wins over connection", NewCommandError("ask", "request", "x", timeout), ExitTimeoutError},
		{"connection", NewCommandError("ask", "request", "x", ollama.ErrConnection), ExitNetworkError},
		{"empty response", fmt.Errorf("wrap: %w", ollama.ErrEmptyResponse), ExitNetworkError},
		{"empty input", conversation.ErrEmptyInput, ExitUsageError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationErrorWithExample("policy", "ignore", "must be alert or message", "dxchat --policy alert")
	assert.Equal(t, "invalid policy: must be alert or message (got: ignore)\nExample: dxchat --policy alert", err.Error())
}

func TestCommandError_Unwrap(t *testing.T) {
	err := NewCommandError("ask", "request", "failed", ollama.ErrConnection)
	assert.True(t, errors.Is(err, ollama.ErrConnection))
	assert.Contains(t, err.Error(), "ask request failed")
}

func TestDisplayError_Text(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, errors.New("boom"), false)
	assert.Contains(t, buf.String(), "[ERROR]")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	DisplayError(&buf, nil, false)
	assert.Empty(t, buf.String())
}

func TestDisplayErrorJSON(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
		wantCode int
	}{
		{"validation", NewValidationError("window", "x", "must be an integer"), "validation_error", ExitUsageError},
		{"config", &ConfigError{Path: "c.toml", Err: errors.New("bad")}, "config_error", ExitConfigError},
		{"client", NewCommandError("ask", "request", "x", ollama.ErrConnection), "client_error", ExitNetworkError},
		{"command", NewCommandError("serve", "listen", "x", errors.New("in use")), "command_error", ExitGeneralError},
		{"generic", errors.New("boom"), "generic_error", ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DisplayError(&buf, tt.err, true)

			var got map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, false, got["success"])
			assert.Equal(t, tt.wantType, got["error_type"])
			assert.Equal(t, float64(tt.wantCode), got["exit_code"])
		})
	}
}
