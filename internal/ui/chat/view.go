// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ui/styles"
)

// Title is shown in the header.
const Title = "DevExpress AI Chat"

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
	}
	if line := m.renderTyping(); line != "" {
		sections = append(sections, line)
	}
	if alerts := m.renderAlerts(); alerts != "" {
		sections = append(sections, alerts)
	}
	if m.lastErr != nil {
		sections = append(sections, m.theme.Error.Render(styles.StatusIndicators.Error+" "+m.lastErr.Error()))
	}
	sections = append(sections, m.renderInput(), m.renderHelp())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// overlayHeight is the number of rows the typing line, alerts, error and
// help take away from the viewport.
func (m Model) overlayHeight() int {
	h := 0
	if m.renderTyping() != "" {
		h++
	}
	if alerts := m.renderAlerts(); alerts != "" {
		h += lipgloss.Height(alerts)
	}
	if m.lastErr != nil {
		h++
	}
	return h + lipgloss.Height(m.renderHelp()) - 1
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	status := m.theme.Status.Render(styles.StatusIndicators.Pending + " checking endpoint")
	switch {
	case m.pinger == nil:
		status = ""
	case m.endpointChecked && m.endpointUp:
		status = m.theme.Success.Render(styles.StatusIndicators.Success + " endpoint up")
	case m.endpointChecked:
		status = m.theme.Error.Render(styles.StatusIndicators.Error + " endpoint down")
	}

	opts := m.session.Options()
	parts := []string{m.theme.HeaderTitle.Render(Title)}
	if opts.Model != "" {
		parts = append(parts, m.theme.HeaderModel.Render(opts.Model))
	}
	if status != "" {
		parts = append(parts, status)
	}

	return m.theme.Header.Width(max(m.width-2, 0)).Render(strings.Join(parts, "  "))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every stored message, plus the partial reply
// while one is streaming.
func (m Model) renderTranscript() string {
	messages := m.session.Messages()
	if len(messages) == 0 && m.partial == "" {
		return m.theme.Help.Render("No messages yet. Say hello!")
	}

	blocks := lo.Map(messages, func(msg model.Message, _ int) string {
		return m.renderMessage(msg.Author, msg.Timestamp.Format("15:04"), msg.Text)
	})
	if m.partial != "" {
		blocks = append(blocks, m.renderMessage(model.Assistant, "", m.partial))
	}
	return strings.Join(blocks, "\n")
}

func (m Model) renderMessage(author model.Participant, stamp, text string) string {
	width := m.theme.BubbleWidth()
	body := renderBody(text, width)

	nameStyle, bubble := m.theme.AssistantName, m.theme.AssistantBubble
	if author.ID == model.UserID {
		nameStyle, bubble = m.theme.UserName, m.theme.UserBubble
	}

	name := nameStyle.Render(author.Name())
	if stamp != "" {
		name += " " + m.theme.Timestamp.Render(stamp)
	}
	return lipgloss.JoinVertical(lipgloss.Left, name, bubble.Render(body))
}

// =============================================================================
// STATUS LINES
// =============================================================================

// renderTyping shows who is composing a reply, or "" when nobody is.
func (m Model) renderTyping() string {
	typing := m.session.Typing()
	if len(typing) == 0 {
		return ""
	}
	names := lo.Map(typing, func(p model.Participant, _ int) string { return p.Name() })
	verb := " is typing..."
	if len(names) > 1 {
		verb = " are typing..."
	}
	return m.spinner.View() + " " + m.theme.Typing.Render(strings.Join(names, ", ")+verb)
}

// renderAlerts shows pending alerts, or "" when there are none.
func (m Model) renderAlerts() string {
	alerts := m.session.AlertMessages()
	if len(alerts) == 0 {
		return ""
	}
	hint := m.theme.Help.Render("  (" + m.keys.ClearAlerts.Help().Key + " to dismiss)")
	lines := lo.Map(alerts, func(a string, _ int) string {
		return styles.StatusIndicators.Warning + " " + a
	})
	return m.theme.Alert.Render(strings.Join(lines, "\n")) + hint
}

func (m Model) renderInput() string {
	return m.theme.Input.Width(max(m.width-2, 0)).Render(m.input.View())
}

func (m Model) renderHelp() string {
	if m.showHelp {
		return m.help.FullHelpView(m.keys.FullHelp())
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}
