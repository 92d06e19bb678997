// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"

	"github.com/dustin/go-humanize"
)

// =============================================================================
// ROLES AND MODES
// =============================================================================

// Provider roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Mode selects how the reply body is consumed.
type Mode int

const (
	// ModeWhole reads a single JSON object.
	ModeWhole Mode = iota
	// ModeStreaming reads newline-delimited JSON chunks.
	ModeStreaming
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "whole"
}

// ModeFor maps the streaming flag from configuration to a Mode.
func ModeFor(streaming bool) Mode {
	if streaming {
		return ModeStreaming
	}
	return ModeWhole
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the response from /api/chat endpoint.
// The same shape is used for every line of a streamed reply.
type ChatResponse struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Message         Message   `json:"message"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	TotalDuration   int64     `json:"total_duration,omitempty"`    // nanoseconds
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"` // number of tokens in prompt
	EvalCount       int       `json:"eval_count,omitempty"`        // number of tokens generated
	EvalDuration    int64     `json:"eval_duration,omitempty"`     // nanoseconds
}

// TokensPerSecond calculates the generation speed from a response.
func (r *ChatResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	seconds := float64(r.EvalDuration) / 1e9
	return float64(r.EvalCount) / seconds
}

// StreamChunk is one decoded payload, streamed or whole.
type StreamChunk struct {
	// Content carried by this chunk (may be empty)
	Content string

	// Done is set on the final chunk of a stream
	Done       bool
	DoneReason string
	Model      string

	// Token counts and timing (only populated on final chunk)
	PromptTokens     int
	CompletionTokens int
	TotalDuration    time.Duration
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	if m.Size <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(m.Size))
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// APIError is the error body Ollama returns with non-2xx responses.
type APIError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
