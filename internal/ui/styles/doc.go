// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colour palette and lipgloss styles shared by the
chat TUI and the CLI.

All colours are lipgloss AdaptiveColor values, so the same palette works on
dark and light terminals. NewThemeFor forces one or the other when the user
configures ui.theme; "auto" follows the terminal background.

# Usage

	theme := styles.NewThemeFor(cfg.UI.Theme)
	theme.SetSize(width, height)
	fmt.Println(theme.AssistantBubble.Width(theme.BubbleWidth()).Render(text))
*/
package styles
