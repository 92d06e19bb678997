// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a snapshot of the transcript to a file.
//
// The snapshot is taken on request and never read back; the session keeps
// no state between runs.
//
// # Key Types
//
//   - Transcript: the messages plus the model and time of the snapshot
//   - Exporter: formats a Transcript (Markdown or JSON)
//
// # Usage
//
//	exp, err := export.ForFormat("md")
//	path, err := export.ToFile(export.Transcript{
//	    Model:    opts.Model,
//	    Messages: session.Messages(),
//	}, exp, ".")
package export
