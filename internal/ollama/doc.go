// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama chat API.
//
// A single POST to /api/chat is made per completion, either reading the whole
// JSON body or consuming the NDJSON stream line by line.
//
// # Key Types
//
//   - Client: HTTP client for /api/chat, /api/tags and the health check
//   - Message: provider-facing chat message (role + content)
//   - ResponseSchema: pluggable extraction of reply text from a payload
//   - Decoder: incremental UTF-8 line splitter for streamed bodies
//   - StreamReader: pull-based reader yielding one StreamChunk per line
//
// # Usage
//
//	client := ollama.NewClient()
//	reply, err := client.Complete(ctx, "", messages, ollama.ModeWhole)
//
// For streaming with partial output:
//
//	reply, err := client.CompleteStream(ctx, "", messages, func(c ollama.StreamChunk) {
//	    fmt.Print(c.Content)
//	})
//
// Failures are reported as *ClientError values; use IsConnection,
// IsEmptyResponse and IsTimeout to classify them.
package ollama
