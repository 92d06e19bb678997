// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClientWithConfig(&ClientConfig{
		BaseURL: srv.URL,
		Logger:  quietLogger(),
	})
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test:11434/"})
	cfg := c.Config()

	assert.Equal(t, "http://example.test:11434", cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultReadSize, cfg.ReadSize)
	assert.Equal(t, SchemaNameOllama, cfg.Schema.Name())
	assert.Zero(t, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeWhole, ModeFor(false))
	assert.Equal(t, ModeStreaming, ModeFor(true))
	assert.Equal(t, "streaming", ModeStreaming.String())
}

// =============================================================================
// WHOLE MODE TESTS
// =============================================================================

func TestComplete_Whole(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"content":"Hello!"}}`))
	})

	messages := []Message{NewSystemMessage("sys"), NewUserMessage("Hi")}
	reply, err := client.Complete(context.Background(), "", messages, ModeWhole)

	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, DefaultModel, got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, messages, got.Messages)
}

func TestComplete_ModelOverride(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	})

	_, err := client.Complete(context.Background(), "mistral", nil, ModeWhole)
	require.NoError(t, err)
	assert.Equal(t, "mistral", got.Model)
	assert.NotNil(t, got.Messages, "messages must serialize as an array")
}

func TestComplete_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model exploded"}`))
	})

	_, err := client.Complete(context.Background(), "", []Message{NewUserMessage("Hi")}, ModeWhole)

	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.False(t, IsEmptyResponse(err))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model exploded")
}

func TestComplete_EmptyContent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty content", `{"message":{"content":""}}`},
		{"missing message", `{"done":true}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.Complete(context.Background(), "", nil, ModeWhole)
			assert.True(t, IsEmptyResponse(err), "got %v", err)
			assert.False(t, IsConnection(err))
		})
	}
}

func TestComplete_NoBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Complete(context.Background(), "", nil, ModeWhole)
	assert.True(t, IsConnection(err), "got %v", err)
}

func TestComplete_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url, Logger: quietLogger()})
	_, err := client.Complete(context.Background(), "", nil, ModeWhole)

	require.Error(t, err)
	assert.True(t, IsConnection(err))
	assert.False(t, IsTimeout(err))
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := NewClientWithConfig(&ClientConfig{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  quietLogger(),
	})
	_, err := client.Complete(context.Background(), "", nil, ModeWhole)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsConnection(err), "timeouts are connection failures")
}

func TestComplete_OpenAISchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"from choices"}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL, Schema: SchemaOpenAI, Logger: quietLogger()})
	reply, err := client.Complete(context.Background(), "", nil, ModeWhole)

	require.NoError(t, err)
	assert.Equal(t, "from choices", reply)
}

func TestComplete_SchemaDoesNotFallBack(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"only openai"}}]}`))
	})

	_, err := client.Complete(context.Background(), "", nil, ModeWhole)
	assert.True(t, IsEmptyResponse(err))
}

// =============================================================================
// STREAMING MODE TESTS
// =============================================================================

func TestComplete_Streaming(t *testing.T) {
	var got ChatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		flusher := w.(http.Flusher)

		// The second fragment is split inside a multi-byte character.
		parts := []string{
			"{\"message\":{\"content\":\"He\"}}\n{\"message\":{\"content\":\"llo \xe4",
			"\xb8\x96\"}}\n",
			"{\"done\":true}\n",
		}
		for _, p := range parts {
			_, _ = w.Write([]byte(p))
			flusher.Flush()
		}
	})

	var partial []string
	reply, err := client.CompleteStream(context.Background(), "", []Message{NewUserMessage("Hi")}, func(c StreamChunk) {
		partial = append(partial, c.Content)
	})

	require.NoError(t, err)
	assert.True(t, got.Stream)
	assert.Equal(t, "Hello 世", reply)
	assert.Equal(t, []string{"He", "llo 世", ""}, partial)
}

func TestComplete_StreamingMode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"message\":{\"content\":\"He\"}}\n{\"message\":{\"content\":\"llo\"}}\n"))
	})

	reply, err := client.Complete(context.Background(), "", nil, ModeStreaming)
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
}

func TestComplete_StreamingEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("garbage\n{\"done\":true}\n"))
	})

	_, err := client.Complete(context.Background(), "", nil, ModeStreaming)
	assert.True(t, IsEmptyResponse(err))
}

func TestComplete_StreamingServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), "", nil, ModeStreaming)
	assert.True(t, IsConnection(err))
}

// =============================================================================
// HEALTH AND MODELS TESTS
// =============================================================================

func TestCheckRunning(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	})
	assert.NoError(t, client.CheckRunning(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.True(t, IsConnection(down.CheckRunning(context.Background())))
}

func TestListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest","size":2019393189,"details":{"family":"llama","parameter_size":"3.2B"}}]}`))
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3.2:latest", models[0].Name)
	assert.Equal(t, "3.2B", models[0].Details.ParameterSize)
	assert.True(t, strings.HasSuffix(models[0].FormatSize(), "GB"))
}

func TestModelInfo_FormatSize(t *testing.T) {
	assert.Equal(t, "0 B", (&ModelInfo{}).FormatSize())
	assert.Equal(t, "1.0 kB", (&ModelInfo{Size: 1000}).FormatSize())
}

// =============================================================================
// ERROR HELPER TESTS
// =============================================================================

func TestClientError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connection bool
		empty      bool
		timeout    bool
	}{
		{"connection", ErrConnection, true, false, false},
		{"timeout", ErrTimeout, true, false, true},
		{"empty", ErrEmptyResponse, false, true, false},
		{"plain", assert.AnError, false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.connection, IsConnection(tc.err))
			assert.Equal(t, tc.empty, IsEmptyResponse(tc.err))
			assert.Equal(t, tc.timeout, IsTimeout(tc.err))
		})
	}
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema("")
	require.NoError(t, err)
	assert.Equal(t, SchemaNameOllama, s.Name())

	s, err = ParseSchema("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, SchemaNameOpenAI, s.Name())

	_, err = ParseSchema("anthropic")
	assert.Error(t, err)
}

func TestSchemaOpenAI_StreamDelta(t *testing.T) {
	chunk, err := SchemaOpenAI.Decode([]byte(`{"choices":[{"delta":{"content":"tok"},"finish_reason":null}]}`))
	require.NoError(t, err)
	assert.Equal(t, "tok", chunk.Content)
	assert.False(t, chunk.Done)

	chunk, err = SchemaOpenAI.Decode([]byte(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))
	require.NoError(t, err)
	assert.True(t, chunk.Done)
}
