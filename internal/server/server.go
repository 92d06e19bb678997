// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/conversation"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/model"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is used when Config.Addr is empty.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize caps request bodies (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxTextLength is the longest message text accepted, in bytes.
	MaxTextLength = 32 * 1024
)

// Version is reported by GET /health. Overridden by the CLI at startup.
var Version = "dev"

// ============================================================================
// CONFIG
// ============================================================================

// Pinger checks that the inference endpoint is reachable.
type Pinger interface {
	CheckRunning(ctx context.Context) error
}

// Config holds what a Server is built from.
type Config struct {
	// Session is the conversation the bridge drives (required)
	Session *conversation.Session

	// Addr to listen on (default: DefaultAddr)
	Addr string

	// AllowedOrigins for CORS; empty disables CORS headers
	AllowedOrigins []string

	// RateLimitPerMin per client IP; 0 disables limiting
	RateLimitPerMin int

	// Pinger reports endpoint health on GET /health (optional)
	Pinger Pinger

	// Logger for request lines (default: log.Default())
	Logger *log.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes a conversation Session over JSON/HTTP for browser front ends.
type Server struct {
	cfg      Config
	router   *http.ServeMux
	handler  http.Handler
	limiter  *RateLimiter
	server   *http.Server
	validate *validator.Validate
	started  time.Time
}

// New creates a Server with routes and middleware installed.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		router:   http.NewServeMux(),
		limiter:  NewRateLimiter(cfg.RateLimitPerMin),
		validate: validator.New(),
		started:  time.Now(),
	}
	s.setupRoutes()

	s.handler = Chain(
		RecoveryMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(cfg.Logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(DefaultCORSConfig(cfg.AllowedOrigins)),
		RateLimitMiddleware(s.limiter),
		MaxBytesMiddleware(MaxRequestBodySize),
	)(s.router)

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/messages", s.handlePostMessage)
	s.router.HandleFunc("GET /api/messages", s.handleListMessages)
	s.router.HandleFunc("PATCH /api/messages/{id}", s.handleAmendMessage)
	s.router.HandleFunc("GET /api/state", s.handleState)
	s.router.HandleFunc("DELETE /api/alerts", s.handleClearAlerts)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// API TYPES
// ============================================================================

// SubmitRequest is the body of POST /api/messages.
type SubmitRequest struct {
	Text string `json:"text" validate:"required"`
}

// SubmitResponse reports how the cycle ended and the state afterwards.
type SubmitResponse struct {
	Outcome  string                `json:"outcome"`
	Snapshot conversation.Snapshot `json:"snapshot"`
}

// ClearAlertsResponse is returned by DELETE /api/alerts.
type ClearAlertsResponse struct {
	Cleared  int                   `json:"cleared"`
	Snapshot conversation.Snapshot `json:"snapshot"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	State    string `json:"state"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ============================================================================
// HANDLERS
// ============================================================================

// handlePostMessage handles POST /api/messages.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Text) > MaxTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("text exceeds %d bytes", MaxTextLength))
		return
	}

	// A dropped browser connection must not fail the cycle.
	ctx := context.WithoutCancel(r.Context())

	outcome, err := s.cfg.Session.Submit(ctx, req.Text)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SubmitResponse{
			Outcome:  outcome.String(),
			Snapshot: s.cfg.Session.Snapshot(),
		})
	case errors.Is(err, conversation.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, conversation.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case conversation.IsMissingAuthor(err):
		s.cfg.Logger.Printf("SUBMIT_ABORTED | id=%s error=%v", RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "missing_author", err.Error())
	default:
		s.cfg.Logger.Printf("SUBMIT_FAILED | id=%s error=%v", RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// handleListMessages handles GET /api/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Session.Messages())
}

// handleAmendMessage handles PATCH /api/messages/{id}.
func (s *Server) handleAmendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "message id must be an integer")
		return
	}

	var patch model.MessagePatch
	if !s.decode(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "invalid_request", "patch changes nothing")
		return
	}

	if patch.Text != nil && len(*patch.Text) > MaxTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("text exceeds %d bytes", MaxTextLength))
		return
	}

	if err := s.cfg.Session.Amend(id, patch); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, conversation.ErrUnknownAuthor):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, s.cfg.Session.Messages())
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Session.Snapshot())
}

// handleClearAlerts handles DELETE /api/alerts.
func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.Session.ClearAlerts()
	writeJSON(w, http.StatusOK, ClearAlertsResponse{
		Cleared:  n,
		Snapshot: s.cfg.Session.Snapshot(),
	})
}

// handleHealth handles GET /health. The bridge itself is healthy even when
// the endpoint is down; the endpoint status is reported alongside.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		State:   s.cfg.Session.State().String(),
	}

	if s.cfg.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Pinger.CheckRunning(ctx); err != nil {
			resp.Endpoint = "unreachable"
		} else {
			resp.Endpoint = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s.limiter != nil {
		go s.limiter.Run(ctx, time.Minute)
	}

	s.cfg.Logger.Printf("SERVER_START | addr=%s version=%s", ln.Addr(), Version)
	return s.server.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.cfg.Logger.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v and validates it. On failure it writes a
// 400 (or 413) and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			writeError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()))
			return false
		}
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WRITE_FAILED | status=%d error=%v", status, err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}
