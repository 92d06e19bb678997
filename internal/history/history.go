// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history turns the stored transcript into the message list sent
// to the model.
package history

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// DefaultWindow is the number of transcript entries sent with each request.
const DefaultWindow = 10

// SystemPrompt is always the first entry of a built history.
const SystemPrompt = "Respond in plain text only. Do not use Markdown formatting."

// ErrMissingAuthor means a stored message has no author id, or one that is
// not a known participant. The transcript is corrupt and no request should
// be made from it.
var ErrMissingAuthor = errors.New("message has no known author")

// Source is a read-only view of the transcript.
type Source interface {
	Load() []model.Message
}

// Project converts one message to its provider form.
func Project(msg model.Message) ollama.Message {
	return ollama.Message{Role: msg.Author.ID, Content: msg.Text}
}

// Build returns the system prompt followed by the last window messages of
// src, oldest first. A window <= 0 selects DefaultWindow. The window counts
// the message just submitted, so window-1 earlier entries come with it.
//
// Every message must have a known author, not only those inside the window;
// an unknown id would otherwise reach the model as a role such as "system".
func Build(src Source, window int) ([]ollama.Message, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	messages := src.Load()
	if _, idx, found := lo.FindIndexOf(messages, func(m model.Message) bool {
		return !m.Author.IsKnown()
	}); found {
		return nil, fmt.Errorf("message %d (id %d, author %q): %w", idx, messages[idx].ID, messages[idx].Author.ID, ErrMissingAuthor)
	}

	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	out := make([]ollama.Message, 0, len(messages)+1)
	out = append(out, ollama.NewSystemMessage(SystemPrompt))
	out = append(out, lo.Map(messages, func(m model.Message, _ int) ollama.Message {
		return Project(m)
	})...)
	return out, nil
}
