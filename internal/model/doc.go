// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the transcript types shared by every layer.
//
// # Key Types
//
//   - Participant: author of a message; "user" and "assistant" are the only
//     known ids and double as the provider role tag
//   - Message: a transcript entry with id, timestamp, author and text
//   - MessagePatch: partial fields merged into an existing entry by amend
//   - IDSource: monotonic millisecond id generator
//
// # Usage
//
//	ids := model.NewIDSource()
//	msg := model.NewUserMessage(ids.Next(), "Hi")
package model
