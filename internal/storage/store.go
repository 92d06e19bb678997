// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"sync"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrDuplicateKey is returned when a message with the same id already exists.
// Use errors.Is(err, ErrDuplicateKey) to check for this error.
var ErrDuplicateKey = &StoreError{Message: "duplicate message id"}

// ErrNotFound is returned when amending a message that doesn't exist.
var ErrNotFound = &StoreError{Message: "message not found"}

// StoreError represents a message store error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore keeps the transcript in insertion order.
// It is safe for concurrent use.
type MessageStore struct {
	mu       sync.RWMutex
	messages []model.Message
	index    map[int64]int // id -> position in messages
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make([]model.Message, 0, 32),
		index:    make(map[int64]int),
	}
}

// Load returns a copy of every message in insertion order.
// An empty store yields an empty, non-nil slice.
func (s *MessageStore) Load() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Insert appends msg and returns it unchanged.
// A message whose id is already present is rejected and the store is left as it was.
func (s *MessageStore) Insert(msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[msg.ID]; exists {
		return model.Message{}, fmt.Errorf("insert %d: %w", msg.ID, ErrDuplicateKey)
	}

	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg, nil
}

// Amend merges the non-nil fields of patch into the message with the given id.
func (s *MessageStore) Amend(id int64, patch model.MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("amend %d: %w", id, ErrNotFound)
	}

	s.messages[pos] = patch.Apply(s.messages[pos])
	return nil
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id int64) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return model.Message{}, false
	}
	return s.messages[pos], true
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
