package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/naila/sayra/pkg/chat"
	"github.com/naila/sayra/pkg/session"
)

// streamSink forwards fragments to the HTTP response as plain text,
// flushing after every fragment. Headers are committed lazily on the
// first fragment so that a stream that fails before producing output
// can still send a structured error.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	bytes   int
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	flusher, _ := w.(http.Flusher)
	return &streamSink{w: w, flusher: flusher}
}

func (s *streamSink) WriteFragment(fragment string) error {
	if s.bytes == 0 {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
	}

	n, err := io.WriteString(s.w, fragment)
	s.bytes += n
	if err != nil {
		return err
	}
	// Backpressure lives in the Write above; Flush only pushes
	// buffered bytes onto the wire
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// handleStream handles POST /chat/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	owner := OwnerFromContext(r.Context())
	sink := newStreamSink(w)

	turn, err := s.orchestrator.StreamTurn(r.Context(), owner, strings.TrimSpace(req.SessionID), req.Prompt, sink)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("requestId", RequestIDFromContext(r.Context())).
			Str("sessionId", req.SessionID).
			Int("bytesSent", sink.bytes).
			Msg("Chat turn failed")

		if errors.Is(err, context.Canceled) {
			// Caller went away; nothing left to answer
			return
		}
		if sink.bytes == 0 {
			writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
			return
		}
		// The transport is already committed to a plain-text stream;
		// terminate it without a clean end marker instead of leaking
		// an error body into the reply text
		panic(http.ErrAbortHandler)
	}

	s.logger.Debug().
		Str("requestId", RequestIDFromContext(r.Context())).
		Str("turnId", turn.TurnID).
		Int("fragments", turn.Fragments).
		Msg("Stream finished")
}

// statusFor maps turn errors to HTTP status codes
func statusFor(err error) int {
	var (
		validationErr  *chat.ValidationError
		notFoundErr    *chat.NotFoundError
		providerErr    *chat.ProviderError
		persistenceErr *chat.PersistenceError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.As(err, &persistenceErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// handleHistory handles GET /chat/history/{sessionId}. An unknown
// session returns an empty list, never a 404, so a fresh client can
// probe before its first turn.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	owner := OwnerFromContext(r.Context())

	sess, err := s.store.Get(r.Context(), sessionID, owner)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusOK, HistoryResponse{Messages: []session.Message{}})
			return
		}
		s.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to fetch history")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error during history fetch."})
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{Messages: sess.Messages})
}

// handleSessions handles GET /chat/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())

	summaries, err := s.store.List(r.Context(), owner, s.options.SessionPageSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error fetching chat list."})
		return
	}

	writeJSON(w, http.StatusOK, summaries)
}

// handleRename handles PUT /chat/rename/{sessionId}
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	owner := OwnerFromContext(r.Context())

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Title is required"})
		return
	}

	if err := s.store.Rename(r.Context(), sessionID, owner, req.Title); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, AckResponse{Message: "Chat session not found."})
			return
		}
		s.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to rename session")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error during chat rename."})
		return
	}

	if s.hub != nil {
		s.hub.Publish("session.updated", map[string]interface{}{"sessionId": sessionID})
	}
	writeJSON(w, http.StatusOK, AckResponse{Message: "Chat session renamed successfully."})
}

// handleDelete handles DELETE /chat/{sessionId}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	owner := OwnerFromContext(r.Context())

	if err := s.store.Delete(r.Context(), sessionID, owner); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, AckResponse{Message: "Chat session not found."})
			return
		}
		s.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to delete session")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error during chat deletion."})
		return
	}

	if s.hub != nil {
		s.hub.Publish("session.deleted", map[string]interface{}{"sessionId": sessionID})
	}
	writeJSON(w, http.StatusOK, AckResponse{Message: "Chat session deleted successfully."})
}

// handleGenerate handles POST /generate, the one-shot sessionless
// completion endpoint
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, GenerateResponse{Success: false, Error: "Invalid request body"})
		return
	}

	text, err := s.orchestrator.Generate(r.Context(), req.Prompt)
	if err != nil {
		var validationErr *chat.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, GenerateResponse{Success: false, Error: err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("Generate failed")
		writeJSON(w, http.StatusInternalServerError, GenerateResponse{
			Success: false,
			Error:   "An internal server error occurred during content generation.",
		})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{Success: true, GeneratedText: text})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Seconds(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
