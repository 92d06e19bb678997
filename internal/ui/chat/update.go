// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.input.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		m.ready = true
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SubmitResultMsg:
		m.pending = false
		m.partial = ""
		m.lastErr = msg.Err
		m.input.Placeholder = Placeholder
		m.refresh(true)
		return m, nil

	case PartialMsg:
		if m.InputDisabled() {
			m.partial = msg.Text
			m.refresh(true)
		}
		return m, waitForPartial(m.partials)

	case EndpointStatusMsg:
		m.endpointChecked = true
		m.endpointUp = msg.Running
		return m, nil

	case AlertsClearedMsg:
		m.refresh(false)
		return m, nil

	case OptionsChangedMsg:
		m.session.SetOptions(msg.Options)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey routes key presses to navigation, actions or the input field.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.refresh(false)
		return m, nil

	case key.Matches(msg, m.keys.ClearAlerts):
		return m, ClearAlertsCmd(m.session)

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	// Input is disabled while a reply is pending.
	if m.InputDisabled() {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input text as a new user message.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.InputDisabled() {
		return m, nil
	}

	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	m.pending = true
	m.input.Reset()
	m.input.Placeholder = WaitingPlaceholder
	m.partial = ""
	m.lastErr = nil

	return m, SubmitCmd(m.session, text)
}

// refresh re-renders the transcript into the viewport and recomputes the
// layout. The view follows new messages when bottom is true.
func (m *Model) refresh(bottom bool) {
	if !m.ready {
		return
	}

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-headerHeight-footerHeight-m.overlayHeight(), 1)
	m.viewport.SetContent(m.renderTranscript())
	if bottom {
		m.viewport.GotoBottom()
	}
}
