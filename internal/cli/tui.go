// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen chat, the default command.

package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ui/chat"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ui/styles"
)

// HandleTUI runs the Bubble Tea chat screen until the user quits.
// Config file changes reach the screen as OptionsChangedMsg.
func HandleTUI(ctx context.Context, app *App, args Args) error {
	if err := RequiresTTY("run the chat UI"); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	theme := styles.NewThemeFor(app.Config.UI.Theme)
	screen := chat.New(app.Session, app.Client, theme)

	program := tea.NewProgram(screen,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if err := app.WatchConfig(ctx, func(opts conversation.Options) {
		program.Send(chat.OptionsChangedMsg{Options: opts})
	}); err != nil {
		app.Logger.Printf("CONFIG_WATCH_FAILED | path=%s error=%q", app.ConfigPath, err.Error())
	}

	if _, err := program.Run(); err != nil {
		return NewCommandError("tui", "run", fmt.Sprintf("model %s", app.Config.Endpoint.Model), err)
	}
	return nil
}
