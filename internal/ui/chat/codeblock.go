// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ui/styles"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/util"
)

// =============================================================================
// MESSAGE BODY
// =============================================================================

// segment is a run of prose or a fenced code block in a message.
type segment struct {
	code     bool
	language string
	text     string
}

// splitFences splits text on ``` fences. An unclosed fence runs to the end,
// which is what a reply still streaming looks like.
func splitFences(text string) []segment {
	var (
		segs  []segment
		lines []string
		cur   segment
	)
	flush := func() {
		if len(lines) > 0 || cur.code {
			cur.text = strings.Join(lines, "\n")
			segs = append(segs, cur)
		}
		lines = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "```") {
			lines = append(lines, line)
			continue
		}
		flush()
		if cur.code {
			cur = segment{}
		} else {
			cur = segment{code: true, language: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))}
		}
	}
	flush()
	return segs
}

// renderBody wraps prose to width and renders code blocks highlighted and
// boxed. Code lines are not wrapped.
func renderBody(text string, width int) string {
	segs := splitFences(text)
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if !s.code {
			parts = append(parts, strings.Join(util.Wrap(s.text, width), "\n"))
			continue
		}
		parts = append(parts, renderCode(s.language, s.text, width))
	}
	return strings.Join(parts, "\n")
}

// renderCode renders one fenced block with an optional language badge.
func renderCode(language, code string, width int) string {
	body := highlightCode(code, language)
	if language != "" {
		badge := lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Bold(true).
			Render(language)
		body = badge + "\n" + body
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(max(width, 20)).
		Render(body)
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode returns code with terminal colour escapes, or code unchanged
// when no lexer applies or formatting fails.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}
