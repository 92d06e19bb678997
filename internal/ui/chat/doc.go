// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat screen.

The screen is a Bubble Tea model over a conversation.Session. It renders the
transcript in a scrollable viewport, shows a spinner line while the assistant
is typing, lists pending alerts, and takes input from a single-line text
field. Submitting runs the request cycle as a tea.Cmd so the screen stays
responsive; the input refuses text until the cycle ends.

# Usage

	screen := chat.New(session, client, styles.NewThemeFor(cfg.UI.Theme))
	p := tea.NewProgram(screen, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}

Streaming replies are shown as they arrive when the session runs in
streaming mode.
*/
package chat
