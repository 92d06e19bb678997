// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/history"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// =============================================================================
// STATES
// =============================================================================

// State is a step of the request cycle.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingReply
	StateResolvedSuccess
	StateResolvedFailure
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateResolvedSuccess:
		return "resolved_success"
	case StateResolvedFailure:
		return "resolved_failure"
	default:
		return "unknown"
	}
}

// Outcome reports how a Submit call ended.
type Outcome int

const (
	// OutcomeNone is returned alongside an error.
	OutcomeNone Outcome = iota
	// OutcomeReplied means an assistant message was stored.
	OutcomeReplied
	// OutcomeFailed means the request failed and was reported to the user.
	OutcomeFailed
	// OutcomeBlocked means pending alerts prevented a request.
	OutcomeBlocked
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeReplied:
		return "replied"
	case OutcomeFailed:
		return "failed"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// =============================================================================
// ALERTS AND POLICY
// =============================================================================

// AlertConnectionFailed is the alert raised for any failed request.
const AlertConnectionFailed = "Failed to connect to AI server."

// ErrorReplyText is stored as the assistant reply under PolicyMessage.
const ErrorReplyText = "Error: could not reach AI server."

// Alert is a user-facing failure notice, kept apart from the transcript.
type Alert struct {
	Message string `json:"message"`
}

// FailurePolicy selects how a failed request is shown to the user.
type FailurePolicy string

const (
	// PolicyAlert raises an alert, which blocks further requests until cleared.
	PolicyAlert FailurePolicy = "alert"
	// PolicyMessage stores an assistant message with ErrorReplyText.
	PolicyMessage FailurePolicy = "message"
)

// ParsePolicy parses a failure policy name. Empty selects PolicyAlert.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAlert:
		return PolicyAlert, nil
	case PolicyMessage:
		return PolicyMessage, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, PolicyAlert, PolicyMessage)
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options tune each request cycle. They may be replaced between cycles.
type Options struct {
	// Model passed to the client; empty uses the client's default
	Model string

	// Window is the number of transcript entries sent (default: 10)
	Window int

	// Mode selects whole or streaming replies (default: whole)
	Mode ollama.Mode

	// FailurePolicy selects alert or error message (default: alert)
	FailurePolicy FailurePolicy
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Window:        history.DefaultWindow,
		Mode:          ollama.ModeWhole,
		FailurePolicy: PolicyAlert,
	}
}

func (o Options) normalized() Options {
	if o.Window <= 0 {
		o.Window = history.DefaultWindow
	}
	if o.FailurePolicy == "" {
		o.FailurePolicy = PolicyAlert
	}
	return o
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrBusy is returned by Submit while another request is in flight.
var ErrBusy = errors.New("a request is already in progress")

// ErrEmptyInput is returned by Submit for blank text.
var ErrEmptyInput = errors.New("message text is empty")

// ErrUnknownAuthor is returned by Amend for a patch naming an author other
// than the user or the assistant.
var ErrUnknownAuthor = errors.New("author is not a known participant")

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a consistent copy of everything a UI renders.
type Snapshot struct {
	Messages     []model.Message     `json:"messages"`
	Typing       []model.Participant `json:"typingUsers"`
	IsProcessing bool                `json:"isProcessing"`
	Alerts       []Alert             `json:"alerts"`
	State        string              `json:"state"`
}
