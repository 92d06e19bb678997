// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// TruncateRunes truncates a string to a maximum number of runes.
// If the string is truncated, "..." is appended within the limit.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= len(ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(ellipsis)]) + ellipsis
}

// StringWidth returns the display width of s in terminal columns.
// Double-width characters (CJK, most emoji) count as 2.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateWidth truncates s so it fits in maxWidth columns, ellipsis included.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// Wrap breaks s into lines no wider than width columns. Existing newlines
// are kept, words are moved whole when they fit, and words longer than a
// line are split at the column boundary.
func Wrap(s string, width int) []string {
	if width <= 0 {
		return strings.Split(s, "\n")
	}

	var lines []string
	for _, para := range strings.Split(s, "\n") {
		var line strings.Builder
		lineWidth := 0
		start := len(lines)

		flush := func() {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}

		for _, word := range strings.Fields(para) {
			w := runewidth.StringWidth(word)

			if lineWidth > 0 && lineWidth+1+w > width {
				flush()
			}
			for w > width {
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					_, size := utf8.DecodeRuneInString(word)
					head = word[:size]
				}
				if lineWidth > 0 {
					flush()
				}
				lines = append(lines, head)
				word = word[len(head):]
				w = runewidth.StringWidth(word)
			}
			if w == 0 {
				continue
			}
			if lineWidth > 0 {
				line.WriteByte(' ')
				lineWidth++
			}
			line.WriteString(word)
			lineWidth += w
		}
		if line.Len() > 0 || len(lines) == start {
			flush()
		}
	}
	return lines
}
