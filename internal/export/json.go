// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import "encoding/json"

// JSONExporter writes the transcript with the same message shape the HTTP
// bridge serves.
type JSONExporter struct{}

// Export converts a transcript to indented JSON.
func (JSONExporter) Export(t Transcript) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}
	return json.MarshalIndent(t, "", "  ")
}

// FileExtension returns ".json".
func (JSONExporter) FileExtension() string {
	return ".json"
}
