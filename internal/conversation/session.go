// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/history"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/storage"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Completer sends a provider message list and returns the reply text.
// *ollama.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, model string, messages []ollama.Message, mode ollama.Mode) (string, error)
}

// StreamCompleter is implemented by clients that can report partial text.
type StreamCompleter interface {
	CompleteStream(ctx context.Context, model string, messages []ollama.Message, cb ollama.StreamCallback) (string, error)
}

// TransitionFunc observes state changes. It is called without the session
// lock held, in the order the transitions happened.
type TransitionFunc func(from, to State)

// Config holds what a Session is built from.
type Config struct {
	// Client performs completions (required)
	Client Completer

	// Store holds the transcript (default: a new empty store)
	Store *storage.MessageStore

	// IDs hands out message ids (default: wall-clock ids)
	IDs *model.IDSource

	// Options for each cycle (default: DefaultOptions())
	Options Options

	// Logger receives SUBMIT/REQUEST_* lines (default: log.Default())
	Logger *log.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one conversation between the user and the assistant.
// It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	store  *storage.MessageStore
	client Completer
	ids    *model.IDSource
	logger *log.Logger

	opts        Options
	state       State
	processing  bool
	typing      []model.Participant
	alerts      []Alert
	lastFailure error

	onPartial    func(text string)
	onTransition TransitionFunc
	transitions  [][2]State // pending notifications, drained after unlock
}

// New creates a session in the Idle state.
func New(cfg Config) *Session {
	if cfg.Store == nil {
		cfg.Store = storage.NewMessageStore()
	}
	if cfg.IDs == nil {
		cfg.IDs = model.NewIDSource()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	}

	return &Session{
		store:  cfg.Store,
		client: cfg.Client,
		ids:    cfg.IDs,
		logger: cfg.Logger,
		opts:   cfg.Options.normalized(),
		state:  StateIdle,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit stores the user's text and, unless alerts are pending, asks the
// model for a reply.
//
// Request failures are reported through the alert list (or an error reply,
// depending on the failure policy) and yield OutcomeFailed with a nil error.
// A non-nil error means the cycle could not run: ErrBusy, ErrEmptyInput,
// a store error, or history.ErrMissingAuthor.
func (s *Session) Submit(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return OutcomeNone, ErrEmptyInput
	}

	s.mu.Lock()
	if s.processing || s.state != StateIdle {
		s.mu.Unlock()
		s.logger.Printf("REQUEST_BUSY | state=%s", s.State())
		return OutcomeNone, ErrBusy
	}

	s.transition(StateDispatching)
	userMsg, err := s.store.Insert(model.NewUserMessage(s.ids.Next(), text))
	if err != nil {
		s.transition(StateIdle)
		s.unlockAndNotify()
		return OutcomeNone, fmt.Errorf("store user message: %w", err)
	}
	s.logger.Printf("SUBMIT | id=%d chars=%d", userMsg.ID, len([]rune(text)))

	if len(s.alerts) > 0 {
		alerts := len(s.alerts)
		s.transition(StateIdle)
		s.unlockAndNotify()
		s.logger.Printf("REQUEST_BLOCKED | id=%d alerts=%d", userMsg.ID, alerts)
		return OutcomeBlocked, nil
	}

	s.processing = true
	s.typing = []model.Participant{model.Assistant}
	opts := s.opts

	messages, err := history.Build(s.store, opts.Window)
	if err != nil {
		s.endCycle(StateIdle)
		s.unlockAndNotify()
		s.logger.Printf("REQUEST_ABORTED | id=%d error=%q", userMsg.ID, err.Error())
		return OutcomeNone, err
	}

	s.transition(StateAwaitingReply)
	onPartial := s.onPartial
	s.unlockAndNotify()

	start := time.Now()
	reply, err := s.complete(ctx, opts, messages, onPartial)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.unlockAndNotify()

	if err != nil {
		s.resolveFailure(opts.FailurePolicy, err)
		s.logger.Printf("REQUEST_ERROR | id=%d policy=%s duration=%s error=%q",
			userMsg.ID, opts.FailurePolicy, elapsed.Round(time.Millisecond), err.Error())
		return OutcomeFailed, nil
	}

	assistantMsg, err := s.store.Insert(model.NewAssistantMessage(s.ids.Next(), reply))
	if err != nil {
		s.endCycle(StateIdle)
		return OutcomeNone, fmt.Errorf("store assistant message: %w", err)
	}

	s.lastFailure = nil
	s.endCycle(StateResolvedSuccess)
	s.logger.Printf("REQUEST_COMPLETE | id=%d reply=%d chars=%d duration=%s",
		userMsg.ID, assistantMsg.ID, len([]rune(reply)), elapsed.Round(time.Millisecond))
	return OutcomeReplied, nil
}

// complete calls the client without the lock held.
func (s *Session) complete(ctx context.Context, opts Options, messages []ollama.Message, onPartial func(string)) (string, error) {
	if s.client == nil {
		return "", &ollama.ClientError{Type: ollama.ErrTypeConnection, Message: "no inference client configured"}
	}

	if opts.Mode == ollama.ModeStreaming && onPartial != nil {
		if sc, ok := s.client.(StreamCompleter); ok {
			var acc strings.Builder
			return sc.CompleteStream(ctx, opts.Model, messages, func(chunk ollama.StreamChunk) {
				if chunk.Content == "" {
					return
				}
				acc.WriteString(chunk.Content)
				onPartial(acc.String())
			})
		}
	}

	return s.client.Complete(ctx, opts.Model, messages, opts.Mode)
}

// resolveFailure applies the failure policy. Caller holds the lock.
func (s *Session) resolveFailure(policy FailurePolicy, cause error) {
	s.lastFailure = cause

	if policy == PolicyMessage {
		if _, err := s.store.Insert(model.NewAssistantMessage(s.ids.Next(), ErrorReplyText)); err == nil {
			s.endCycle(StateResolvedFailure)
			return
		}
	}

	s.alerts = append(s.alerts, Alert{Message: AlertConnectionFailed})
	s.endCycle(StateResolvedFailure)
}

// endCycle clears the in-flight markers and returns to Idle through the
// given resolved state. Caller holds the lock.
func (s *Session) endCycle(resolved State) {
	s.typing = nil
	s.processing = false
	if resolved != StateIdle {
		s.transition(resolved)
	}
	s.transition(StateIdle)
}

// transition records a state change. Caller holds the lock.
func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.onTransition != nil && from != to {
		s.transitions = append(s.transitions, [2]State{from, to})
	}
}

// unlockAndNotify releases the lock and then reports queued transitions.
func (s *Session) unlockAndNotify() {
	pending := s.transitions
	s.transitions = nil
	fn := s.onTransition
	s.mu.Unlock()

	for _, t := range pending {
		fn(t[0], t[1])
	}
}

// =============================================================================
// UI ACTIONS
// =============================================================================

// ClearAlerts removes every pending alert, allowing requests again.
func (s *Session) ClearAlerts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.alerts)
	s.alerts = nil
	if n > 0 {
		s.logger.Printf("ALERTS_CLEARED | count=%d", n)
	}
	return n
}

// Amend corrects a stored message in place. A patch may change an author
// only to the user or the assistant.
func (s *Session) Amend(id int64, patch model.MessagePatch) error {
	if patch.Author != nil && !patch.Author.IsKnown() {
		return fmt.Errorf("amend message %d to author %q: %w", id, patch.Author.ID, ErrUnknownAuthor)
	}
	if err := s.store.Amend(id, patch); err != nil {
		return err
	}
	s.logger.Printf("MESSAGE_AMENDED | id=%d", id)
	return nil
}

// SetOptions replaces the options used by the next cycle.
func (s *Session) SetOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts.normalized()
}

// OnPartial sets a hook receiving the accumulated reply while a streaming
// request is in flight. It is called from the goroutine running Submit.
func (s *Session) OnPartial(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPartial = fn
}

// OnTransition sets a hook receiving every state change.
func (s *Session) OnTransition(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

// =============================================================================
// READ SURFACE
// =============================================================================

// Options returns the current options.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// State returns the current state of the cycle.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []model.Message {
	return s.store.Load()
}

// Typing returns the participants currently shown as typing.
func (s *Session) Typing() []model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Participant{}, s.typing...)
}

// IsProcessing reports whether a request is in flight.
func (s *Session) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Alerts returns a copy of the pending alerts.
func (s *Session) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert{}, s.alerts...)
}

// AlertMessages returns the text of each pending alert.
func (s *Session) AlertMessages() []string {
	return lo.Map(s.Alerts(), func(a Alert, _ int) string {
		return a.Message
	})
}

// LastFailure returns the error behind the most recent failed request,
// or nil if the last request succeeded.
func (s *Session) LastFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// Snapshot returns a consistent copy of the session for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Messages:     s.store.Load(),
		Typing:       append([]model.Participant{}, s.typing...),
		IsProcessing: s.processing,
		Alerts:       append([]Alert{}, s.alerts...),
		State:        s.state.String(),
	}
}

// IsMissingAuthor reports whether err came from a corrupted transcript.
func IsMissingAuthor(err error) bool {
	return errors.Is(err, history.ErrMissingAuthor)
}
