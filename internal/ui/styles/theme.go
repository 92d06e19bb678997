// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	UserName        lipgloss.Style
	AssistantName   lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	Timestamp       lipgloss.Style

	Alert   lipgloss.Style
	Typing  lipgloss.Style
	Prompt  lipgloss.Style
	Input   lipgloss.Style
	Status  lipgloss.Style
	Help    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
}

// Theme modes accepted by NewThemeFor.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// NewTheme creates a theme that follows the terminal background.
func NewTheme() *Theme {
	return NewThemeFor(ModeAuto)
}

// NewThemeFor creates a theme for "dark", "light" or "auto". Unknown modes
// behave like "auto".
func NewThemeFor(mode string) *Theme {
	t := &Theme{ColorProfile: termenv.ColorProfile()}

	switch strings.ToLower(mode) {
	case ModeDark:
		t.IsDark = true
		lipgloss.SetHasDarkBackground(true)
	case ModeLight:
		t.IsDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		t.IsDark = termenv.HasDarkBackground()
	}

	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 2)

	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderModel = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)

	t.UserName = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantName = lipgloss.NewStyle().Bold(true).Foreground(Purple)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1).
		MarginLeft(4)

	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1).
		MarginRight(4)

	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.Alert = lipgloss.NewStyle().
		Bold(true).
		Foreground(AlertFg).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(AlertBorder).
		Padding(0, 1)

	t.Typing = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.Prompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.Status = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	t.Success = lipgloss.NewStyle().Foreground(Emerald)
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(Rose)
}

// SetSize updates the theme dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// BubbleWidth is the text width inside a message bubble for the current
// terminal width, never less than 10 columns.
func (t *Theme) BubbleWidth() int {
	// margin 4, border 2, padding 2
	w := t.Width - 8
	if w < 10 {
		return 10
	}
	return w
}
