// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter formats a transcript.
type Exporter interface {
	// Export returns the formatted transcript.
	Export(t Transcript) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string
}

// Transcript is what gets exported.
type Transcript struct {
	Model      string          `json:"model"`
	ExportedAt time.Time       `json:"exported_at"`
	Messages   []model.Message `json:"messages"`
}

// ErrEmptyTranscript is returned when there is nothing to export.
var ErrEmptyTranscript = errors.New("transcript has no messages")

// Formats lists the names ForFormat accepts.
var Formats = []string{"md", "json"}

// ForFormat returns the exporter for "md" / "markdown" or "json".
func ForFormat(name string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md", "markdown":
		return MarkdownExporter{}, nil
	case "json":
		return JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want %s)", name, strings.Join(Formats, " or "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile formats t and writes it into dir, returning the file path.
// The file name carries the first user message and the export time.
func ToFile(t Transcript, exp Exporter, dir string) (string, error) {
	if len(t.Messages) == 0 {
		return "", ErrEmptyTranscript
	}
	if t.ExportedAt.IsZero() {
		t.ExportedAt = time.Now()
	}

	content, err := exp.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(title(t.Messages)),
		t.ExportedAt.Format("20060102_150405"),
		exp.FileExtension(),
	)

	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// title is the first user message, shortened.
func title(msgs []model.Message) string {
	for _, m := range msgs {
		if m.IsFromUser() {
			return m.Preview(40)
		}
	}
	return ""
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix and caps the length.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}
