package api

import (
	"time"

	"github.com/naila/sayra/pkg/session"
)

// StreamRequest is the body of POST /chat/stream
type StreamRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
}

// RenameRequest is the body of PUT /chat/rename/{sessionId}
type RenameRequest struct {
	Title string `json:"title"`
}

// GenerateRequest is the body of POST /generate
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the reply of POST /generate
type GenerateResponse struct {
	Success       bool   `json:"success"`
	GeneratedText string `json:"generatedText,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HistoryResponse is the reply of GET /chat/history/{sessionId}
type HistoryResponse struct {
	Messages []session.Message `json:"messages"`
}

// AckResponse carries a human-readable acknowledgement
type AckResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries a structured failure
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the reply of GET /health
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime"`
	Timestamp int64   `json:"timestamp"`
}

// ServerOptions configures the HTTP server
type ServerOptions struct {
	Host            string
	Port            int
	SessionPageSize int
	ShutdownTimeout time.Duration
}
