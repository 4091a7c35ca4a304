// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

const (
	// DefaultListen is the default bind address. Loopback only.
	DefaultListen = "127.0.0.1:8787"

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes = 64 << 10

	// maxContentRunes caps a single chat message.
	maxContentRunes = 4000

	defaultHistoryLimit = 20
)

// Backend is the assistant surface served over HTTP.
type Backend interface {
	HandleMessage(ctx context.Context, msg commands.Message) commands.Response
	Router() *commands.Router
	Permissions() *permission.Store
	Queue() *queue.Queue
}

// ============================================================================
// STATS
// ============================================================================

// Stats counts routed messages by outcome.
type Stats struct {
	Requests  atomic.Int64
	Commands  atomic.Int64
	Replies   atomic.Int64
	Denied    atomic.Int64
	Failures  atomic.Int64
	StartTime time.Time
}

// record classifies one routed response.
func (s *Stats) record(kind commands.ResponseKind) {
	s.Requests.Add(1)
	switch kind {
	case commands.ResponseCommand:
		s.Commands.Add(1)
	case commands.ResponseReply, commands.ResponseGreeting:
		s.Replies.Add(1)
	case commands.ResponseDenied:
		s.Denied.Add(1)
	case commands.ResponseError, commands.ResponseApology:
		s.Failures.Add(1)
	}
}

// StatsSnapshot is the JSON form of Stats.
type StatsSnapshot struct {
	Requests      int64 `json:"requests"`
	Commands      int64 `json:"commands"`
	Replies       int64 `json:"replies"`
	Denied        int64 `json:"denied"`
	Failures      int64 `json:"failures"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests:      s.Requests.Load(),
		Commands:      s.Commands.Load(),
		Replies:       s.Replies.Load(),
		Denied:        s.Denied.Load(),
		Failures:      s.Failures.Load(),
		UptimeSeconds: int64(time.Since(s.StartTime).Seconds()),
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP bridge between a game host and the assistant.
type Server struct {
	addr    string
	mux     *http.ServeMux
	backend Backend

	auth    *AuthConfig
	cors    *CORSConfig
	limiter *RateLimiter
	logger  *log.Logger
	version string
	stats   *Stats

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// Option configures a Server.
type Option func(*Server)

// WithAuth sets the authentication configuration.
func WithAuth(cfg *AuthConfig) Option {
	return func(s *Server) { s.auth = cfg }
}

// WithCORS sets the allowed browser origins.
func WithCORS(cfg *CORSConfig) Option {
	return func(s *Server) { s.cors = cfg }
}

// WithRateLimit allows perMinute requests per client. Zero disables it.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(perMinute) }
}

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server for backend. An empty addr uses DefaultListen.
func New(addr string, backend Backend, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultListen
	}
	s := &Server{
		addr:    addr,
		mux:     http.NewServeMux(),
		backend: backend,
		auth:    DefaultAuthConfig(),
		cors:    DefaultCORSConfig(),
		logger:  log.New(io.Discard),
		version: "dev",
		stats:   &Stats{StartTime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/messages", s.handleMessage)
	s.mux.HandleFunc("GET /v1/commands", s.handleCommands)
	s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /v1/permissions/history", s.handlePermissionHistory)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.cors),
		AuthMiddleware(s.auth, s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter))
	}
	return Chain(middlewares...)(s.mux)
}

// ============================================================================
// MESSAGES
// ============================================================================

// MessageRequest is a chat message seen by the game host.
type MessageRequest struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MessageResponse tells the host what, if anything, to post back.
type MessageResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Replied bool   `json:"replied"`
	Text    string `json:"text,omitempty"`
	Command string `json:"command,omitempty"`
}

func (r *MessageRequest) validate() error {
	content := strings.TrimSpace(r.Content)
	if content == "" {
		return errors.New("content is required")
	}
	if n := len([]rune(content)); n > maxContentRunes {
		return fmt.Errorf("content too long: %d characters (max %d)", n, maxContentRunes)
	}
	return nil
}

// handleMessage handles POST /v1/messages.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	resp := s.backend.HandleMessage(r.Context(), commands.Message{
		Speaker:   req.Speaker,
		Content:   req.Content,
		Type:      req.Type,
		Timestamp: req.Timestamp,
	})
	s.stats.record(resp.Kind)

	s.writeJSON(w, http.StatusOK, MessageResponse{
		ID:      uuid.NewString(),
		Kind:    resp.Kind.String(),
		Replied: resp.Replied(),
		Text:    resp.Text,
		Command: resp.Command,
	})
}

// ============================================================================
// INTROSPECTION
// ============================================================================

// CommandInfo describes one command the host may offer to players.
type CommandInfo struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
	Capability  string `json:"capability"`
	Category    string `json:"category,omitempty"`
}

// handleCommands handles GET /v1/commands.
func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	router := s.backend.Router()
	allowed := router.Registry().Allowed(s.backend.Permissions().Check)
	out := make([]CommandInfo, 0, len(allowed))
	for _, cmd := range allowed {
		out = append(out, CommandInfo{
			Name:        cmd.Name,
			Usage:       router.Prefix() + " " + cmd.Usage,
			Description: cmd.Description,
			Capability:  cmd.Capability.String(),
			Category:    cmd.Category,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"commands": out})
}

// StatusResponse aggregates component statistics.
type StatusResponse struct {
	Router      commands.Stats   `json:"router"`
	Permissions permission.Stats `json:"permissions"`
	Queue       queue.Stats      `json:"queue"`
	Server      StatsSnapshot    `json:"server"`
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Router:      s.backend.Router().Stats(),
		Permissions: s.backend.Permissions().Stats(),
		Queue:       s.backend.Queue().Stats(),
		Server:      s.stats.snapshot(),
	})
}

// handlePermissionHistory handles GET /v1/permissions/history.
func (s *Server) handlePermissionHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.backend.Permissions().History(limit),
	})
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.stats.StartTime).Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server started", "addr", l.Addr().String(), "auth", s.auth != nil && s.auth.Enabled)
	return srv.Serve(l)
}

// Shutdown gracefully stops the server. A Serve call that has not
// started yet returns http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		s.logger.Debug("write response", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, newErrorResponse(status, message))
}

// writeError is used by middleware, which has no Server.
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, newErrorResponse(status, message))
}

func newErrorResponse(status int, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message, Code: status}}
}
