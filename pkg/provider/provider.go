// Package provider abstracts the generative-text services behind a
// streaming interface. Adapters exist for Anthropic and OpenAI; the chat
// orchestrator only ever sees Provider and Stream.
package provider

import (
	"context"
	"fmt"
)

// Role values used in conversation turns. Stored history uses "model"
// for assistant replies; adapters map this to each vendor's role name.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is a single prior conversation turn sent as context.
type Turn struct {
	Role    string
	Content string
}

// Request contains the parameters for a chat call. History holds the
// prior turns only; the in-flight user prompt travels in Prompt.
type Request struct {
	Model        string
	System       string
	History      []Turn
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// Stream is a finite, ordered, non-restartable sequence of text
// fragments. Recv returns io.EOF once the provider finishes cleanly;
// any other error is a mid-stream failure. Close releases the
// underlying connection and is safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider is a generative-text backend.
type Provider interface {
	// Name returns the provider name
	Name() string

	// OpenStream starts a streaming chat call
	OpenStream(ctx context.Context, req Request) (Stream, error)

	// Complete makes a one-shot, non-streaming call and returns the
	// full reply text
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider implementation.
type Config struct {
	Name   string // "anthropic" or "openai"
	APIKey string
}

// New creates a provider from config
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
	}
	switch cfg.Name {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}
