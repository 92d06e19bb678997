// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/util"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in the transcript.
type Message struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Author    Participant `json:"author"`
	Text      string      `json:"text"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(id int64, author Participant, text string) Message {
	return Message{
		ID:        id,
		Timestamp: time.Now(),
		Author:    author,
		Text:      text,
	}
}

// NewUserMessage creates a message authored by the user.
func NewUserMessage(id int64, text string) Message {
	return NewMessage(id, User, text)
}

// NewAssistantMessage creates a message authored by the assistant.
func NewAssistantMessage(id int64, text string) Message {
	return NewMessage(id, Assistant, text)
}

// IsFromUser reports whether the user wrote the message.
func (m Message) IsFromUser() bool {
	return m.Author.ID == UserID
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Text, maxLen)
}

// =============================================================================
// MESSAGE PATCH
// =============================================================================

// MessagePatch carries the fields to merge into an existing message.
// Nil fields are left untouched.
type MessagePatch struct {
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Author    *Participant `json:"author,omitempty"`
	Text      *string      `json:"text,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MessagePatch) IsEmpty() bool {
	return p.Timestamp == nil && p.Author == nil && p.Text == nil
}

// Apply returns m with the patch fields merged in. The id never changes.
func (p MessagePatch) Apply(m Message) Message {
	if p.Timestamp != nil {
		m.Timestamp = *p.Timestamp
	}
	if p.Author != nil {
		m.Author = *p.Author
	}
	if p.Text != nil {
		m.Text = *p.Text
	}
	return m
}

// =============================================================================
// ID SOURCE
// =============================================================================

// IDSource hands out message ids derived from the wall clock in milliseconds.
// Ids are strictly increasing even when several are requested within the
// same millisecond or the clock steps backwards.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDSource creates an id source backed by time.Now.
func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

// Next returns the next id.
func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}
