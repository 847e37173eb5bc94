package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/naila/sayra/internal/observability"
	"github.com/naila/sayra/pkg/chat"
	"github.com/naila/sayra/pkg/events"
	"github.com/naila/sayra/pkg/session"
)

// Server exposes the chat engine over HTTP.
type Server struct {
	options       ServerOptions
	server        *http.Server
	store         *session.Store
	orchestrator  *chat.Orchestrator
	hub           *events.Hub
	authenticator Authenticator
	logger        zerolog.Logger
	startTime     time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// NewServer creates a Server. A nil authenticator falls back to the
// identity-header scheme, a nil hub disables change notifications.
func NewServer(opts ServerOptions, store *session.Store, orchestrator *chat.Orchestrator, hub *events.Hub, auth Authenticator, logger zerolog.Logger) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.SessionPageSize <= 0 {
		opts.SessionPageSize = 50
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if auth == nil {
		auth = &HeaderAuthenticator{}
	}

	return &Server{
		options:       opts,
		store:         store,
		orchestrator:  orchestrator,
		hub:           hub,
		authenticator: auth,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat/stream", s.handleStream)
	mux.HandleFunc("GET /chat/history/{sessionId}", s.handleHistory)
	mux.HandleFunc("GET /chat/sessions", s.handleSessions)
	mux.HandleFunc("PUT /chat/rename/{sessionId}", s.handleRename)
	mux.HandleFunc("DELETE /chat/{sessionId}", s.handleDelete)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	if s.hub != nil {
		mux.HandleFunc("GET /chat/events", s.hub.HandleWS)
	}

	handler := withRequestID(s.withIdentity(mux))

	addr := fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /chat/stream holds the response open for
		// as long as the model keeps talking
		IdleTimeout: 120 * time.Second,
	}
	s.startTime = time.Now()

	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
