// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches another ClientError of the same type. A timeout also matches
// ErrConnection since it is a transport failure.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	if t.Type == e.Type {
		return true
	}
	return t.Type == ErrTypeConnection && e.Type == ErrTypeTimeout
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeEmptyResponse
	ErrTypeInvalidRequest
)

// String returns the error type name used in logs.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeEmptyResponse:
		return "empty_response"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrConnection    = &ClientError{Type: ErrTypeConnection, Message: "connection to AI server failed"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrEmptyResponse = &ClientError{Type: ErrTypeEmptyResponse, Message: "AI server returned no content"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Defaults used when ClientConfig fields are zero.
const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultModel   = "llama3.2"
)

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Model used when a call passes an empty model (default: "llama3.2")
	Model string

	// Timeout for a whole request including the body read. Zero means none.
	Timeout time.Duration

	// ReadSize is the body read size in streaming mode (default: 4096)
	ReadSize int

	// Schema extracts reply text (default: SchemaOllama)
	Schema ResponseSchema

	// Logger receives STREAM_SKIP and request diagnostics (default: log.Default())
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:  DefaultBaseURL,
		Model:    DefaultModel,
		ReadSize: DefaultReadSize,
		Schema:   SchemaOllama,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
// Each completion is a single attempt; nothing is retried.
//
// The Client is thread-safe for concurrent use.
//
// Example:
//
//	client := ollama.NewClient()
//	if err := client.CheckRunning(ctx); err != nil {
//	    log.Fatal("Ollama not available:", err)
//	}
//	reply, err := client.Complete(ctx, "llama3.2", messages, ollama.ModeWhole)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ReadSize <= 0 {
		config.ReadSize = DefaultReadSize
	}
	if config.Schema == nil {
		config.Schema = SchemaOllama
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if err := statusError(resp, "failed to list models"); err != nil {
		return nil, err
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
type StreamCallback func(chunk StreamChunk)

// Complete sends messages to /api/chat and returns the reply text.
// An empty model selects the configured one.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, mode Mode) (string, error) {
	if mode == ModeStreaming {
		return c.CompleteStream(ctx, model, messages, nil)
	}

	resp, err := c.post(ctx, model, messages, false)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "failed to read response", Cause: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", &ClientError{Type: ErrTypeConnection, Message: "response has no body"}
	}

	chunk, err := c.config.Schema.Decode(body)
	if err != nil {
		return "", &ClientError{Type: ErrTypeEmptyResponse, Message: "failed to decode response", Cause: err}
	}
	if chunk.Content == "" {
		return "", ErrEmptyResponse
	}

	return chunk.Content, nil
}

// CompleteStream sends a streaming chat request, calls callback for each
// chunk in arrival order and returns the accumulated text.
// The callback is called synchronously; it may be nil.
func (c *Client) CompleteStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (string, error) {
	resp, err := c.post(ctx, model, messages, true)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	reader := newStreamReader(resp.Body, c.config.Schema, c.config.Logger, c.config.ReadSize)
	defer reader.Release()

	if err := reader.Process(ctx, callback); err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			return "", err
		}
		return "", transportError(err)
	}

	if reader.Skipped() > 0 {
		c.config.Logger.Printf("STREAM_DONE | model=%s chunks=%d skipped=%d", reader.Model(), reader.chunkCount, reader.Skipped())
	}

	content := reader.Accumulated()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// post issues the chat request and checks the response status.
// The caller must close the body.
func (c *Client) post(ctx context.Context, model string, messages []Message, stream bool) (*http.Response, error) {
	if model == "" {
		model = c.config.Model
	}
	if messages == nil {
		messages = []Message{}
	}

	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "application/x-ndjson")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}

	if err := statusError(resp, "chat request failed"); err != nil {
		drainAndClose(resp.Body)
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "response has no body"}
	}

	return resp, nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// statusError converts a non-2xx response into a connection error, using
// Ollama's {"error": "..."} body when present.
func statusError(resp *http.Response, prefix string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: prefix + ": " + resp.Status + ": " + apiErr.Error,
		}
	}
	return &ClientError{
		Type:    ErrTypeConnection,
		Message: prefix + ": " + resp.Status,
	}
}

// transportError classifies a failure from http.Client.Do or a body read.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: ErrConnection.Message, Cause: err}
}

// IsConnection checks if an error is a transport or status failure.
// Timeouts count as connection failures.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsEmptyResponse checks if the server answered without usable content.
func IsEmptyResponse(err error) bool {
	return errors.Is(err, ErrEmptyResponse)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
