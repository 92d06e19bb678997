// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation drives one chat session from user input to reply.
//
// A Session owns the transcript store, the typing set, the processing flag
// and the alert list. Each Submit runs one cycle:
//
//	Idle -> Dispatching -> AwaitingReply -> Resolved(Success|Failure) -> Idle
//
// The user message is stored before any network call. While alerts are
// pending, new messages are stored but no request is made until the UI
// clears them. Only one request is in flight at a time; a second Submit
// during a cycle fails with ErrBusy.
//
// # Usage
//
//	sess := conversation.New(conversation.Config{Client: ollama.NewClient()})
//	outcome, err := sess.Submit(ctx, "Hi")
//	snap := sess.Snapshot()
package conversation
