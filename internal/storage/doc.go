// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds the in-memory transcript for a chat session.
//
// # Key Types
//
//   - MessageStore: ordered, id-keyed collection of model.Message values
//
// # Usage
//
//	store := storage.NewMessageStore()
//	msg, err := store.Insert(model.NewUserMessage(ids.Next(), "Hi"))
//	all := store.Load()
//
// Nothing is written to disk; the transcript lives as long as the process.
package storage
