// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// RESPONSE SCHEMA
// =============================================================================

// ResponseSchema extracts reply text from one JSON payload.
// In whole mode the payload is the full body; in streaming mode it is a
// single NDJSON line.
type ResponseSchema interface {
	// Name identifies the schema in configuration.
	Name() string

	// Decode parses a payload. A payload that is not valid JSON for the
	// schema returns an error; a valid payload without content returns a
	// chunk with empty Content.
	Decode(payload []byte) (StreamChunk, error)
}

// Schema names accepted by ParseSchema.
const (
	SchemaNameOllama = "ollama"
	SchemaNameOpenAI = "openai"
)

var (
	// SchemaOllama reads message.content as returned by /api/chat.
	SchemaOllama ResponseSchema = ollamaSchema{}

	// SchemaOpenAI reads choices[0].message.content, or choices[0].delta.content
	// for streamed chunks.
	SchemaOpenAI ResponseSchema = openAISchema{}
)

// ParseSchema returns the schema registered under name.
// An empty name selects SchemaOllama.
func ParseSchema(name string) (ResponseSchema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemaNameOllama:
		return SchemaOllama, nil
	case SchemaNameOpenAI:
		return SchemaOpenAI, nil
	default:
		return nil, fmt.Errorf("unknown response schema %q (want %q or %q)", name, SchemaNameOllama, SchemaNameOpenAI)
	}
}

// -----------------------------------------------------------------------------
// Ollama
// -----------------------------------------------------------------------------

type ollamaSchema struct{}

func (ollamaSchema) Name() string { return SchemaNameOllama }

func (ollamaSchema) Decode(payload []byte) (StreamChunk, error) {
	var resp ChatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return StreamChunk{}, err
	}

	chunk := StreamChunk{
		Content:    resp.Message.Content,
		Done:       resp.Done,
		DoneReason: resp.DoneReason,
		Model:      resp.Model,
	}
	if resp.Done {
		chunk.PromptTokens = resp.PromptEvalCount
		chunk.CompletionTokens = resp.EvalCount
		chunk.TotalDuration = time.Duration(resp.TotalDuration)
	}
	return chunk, nil
}

// -----------------------------------------------------------------------------
// OpenAI-compatible
// -----------------------------------------------------------------------------

type openAISchema struct{}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		Delta        Message `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func (openAISchema) Name() string { return SchemaNameOpenAI }

func (openAISchema) Decode(payload []byte) (StreamChunk, error) {
	var resp openAIResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return StreamChunk{}, err
	}

	chunk := StreamChunk{Model: resp.Model}
	if len(resp.Choices) > 0 {
		first := resp.Choices[0]
		chunk.Content = first.Message.Content
		if chunk.Content == "" {
			chunk.Content = first.Delta.Content
		}
		if first.FinishReason != nil && *first.FinishReason != "" {
			chunk.Done = true
			chunk.DoneReason = *first.FinishReason
		}
	}
	if resp.Usage != nil {
		chunk.PromptTokens = resp.Usage.PromptTokens
		chunk.CompletionTokens = resp.Usage.CompletionTokens
	}
	return chunk, nil
}
