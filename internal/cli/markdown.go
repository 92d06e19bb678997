// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderer returns the shared glamour renderer, or nil if it could not be
// built.
func renderer() *glamour.TermRenderer {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(GetTerminalWidth()-4, 100)),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	return markdownRenderer
}

// RenderReply formats an assistant reply for the terminal. Markdown is
// rendered only when colors are enabled and plain is false; otherwise the
// text is wrapped to the terminal width.
func RenderReply(text string, plain bool) string {
	if plain || !ColorsEnabled() {
		return WrapText(text, 0)
	}
	r := renderer()
	if r == nil {
		return WrapText(text, 0)
	}
	out, err := r.Render(text)
	if err != nil {
		return WrapText(text, 0)
	}
	return strings.Trim(out, "\n")
}
