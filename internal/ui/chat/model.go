// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ui/styles"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// Placeholder shown in the input while it accepts text.
	Placeholder = "Type a message..."

	// WaitingPlaceholder is shown while a reply is pending and input is disabled.
	WaitingPlaceholder = "Waiting for reply..."

	// CharLimit caps the input length.
	CharLimit = 4000

	// headerHeight and footerHeight are the rows around the viewport not
	// counting alerts and the typing line.
	headerHeight = 3
	footerHeight = 3
)

// Pinger checks that the inference endpoint is reachable.
type Pinger interface {
	CheckRunning(ctx context.Context) error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen. It renders a
// conversation.Session and forwards input to it.
type Model struct {
	session *conversation.Session
	pinger  Pinger
	theme   *styles.Theme
	keys    KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	width  int
	height int
	ready  bool

	// partial is the streaming reply text, shown until the cycle ends
	partial  string
	partials chan string

	// pending is set from Enter until the cycle's result arrives
	pending bool

	endpointChecked bool
	endpointUp      bool
	lastErr         error
	showHelp        bool
}

// New creates the chat screen for session. The pinger may be nil.
//
// New installs a partial-text hook on the session; the screen should be the
// only consumer of partial text while it runs.
func New(session *conversation.Session, pinger Pinger, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}

	input := textinput.New()
	input.Placeholder = Placeholder
	input.CharLimit = CharLimit
	input.Prompt = theme.Prompt.Render("> ")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Typing

	partials := make(chan string, 1)
	session.OnPartial(func(text string) {
		// Keep only the newest text.
		select {
		case <-partials:
		default:
		}
		select {
		case partials <- text:
		default:
		}
	})

	return Model{
		session:  session,
		pinger:   pinger,
		theme:    theme,
		keys:     DefaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		help:     help.New(),
		partials: partials,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		CheckEndpointCmd(m.pinger),
		waitForPartial(m.partials),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

// SubmitCmd runs one request cycle in the background.
func SubmitCmd(session *conversation.Session, text string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := session.Submit(context.Background(), text)
		return SubmitResultMsg{Outcome: outcome, Err: err}
	}
}

// CheckEndpointCmd pings the endpoint. A nil pinger yields no command.
func CheckEndpointCmd(p Pinger) tea.Cmd {
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := p.CheckRunning(ctx)
		return EndpointStatusMsg{Running: err == nil, Err: err}
	}
}

// ClearAlertsCmd dismisses pending alerts.
func ClearAlertsCmd(session *conversation.Session) tea.Cmd {
	return func() tea.Msg {
		return AlertsClearedMsg{Count: session.ClearAlerts()}
	}
}

func waitForPartial(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return PartialMsg{Text: <-ch}
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Session returns the conversation the screen renders.
func (m Model) Session() *conversation.Session {
	return m.session
}

// InputValue returns the current contents of the input field.
func (m Model) InputValue() string {
	return m.input.Value()
}

// InputDisabled reports whether the input refuses text, which is the case
// while a reply is pending.
func (m Model) InputDisabled() bool {
	return m.pending || m.session.IsProcessing()
}

// LastError returns the last error a submit reported, if any.
func (m Model) LastError() error {
	return m.lastErr
}
