// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes YAML front matter, then one section per message.
// Message text is already Markdown and is copied as is.
type MarkdownExporter struct{}

// Export converts a transcript to Markdown.
func (MarkdownExporter) Export(t Transcript) ([]byte, error) {
	if len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title(t.Messages)))
	if t.Model != "" {
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(t.Model))
	}
	fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
	fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
	sb.WriteString("generator: dxchat\n")
	sb.WriteString("---\n\n")

	sb.WriteString("# Conversation\n\n")

	for i, msg := range t.Messages {
		fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Author.Name(), msg.Timestamp.Format("15:04:05"))
		sb.WriteString(strings.TrimSpace(msg.Text))
		sb.WriteString("\n\n")
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (MarkdownExporter) FileExtension() string {
	return ".md"
}

// escapeYAML quotes s when it would not parse as a plain scalar.
func escapeYAML(s string) string {
	if s == "" || strings.ContainsAny(s, ":#{}[],&*!|>'\"%@`\n") || s != strings.TrimSpace(s) {
		return fmt.Sprintf("%q", s)
	}
	return s
}
