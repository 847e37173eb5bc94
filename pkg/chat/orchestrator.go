package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naila/sayra/internal/observability"
	"github.com/naila/sayra/pkg/provider"
	"github.com/naila/sayra/pkg/session"
)

// Notifier publishes session change events to interested listeners.
// Implementations must not block.
type Notifier interface {
	Publish(event string, data interface{})
}

// Options configures the turn orchestrator
type Options struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	// IdleTimeout bounds the gap between provider fragments
	IdleTimeout time.Duration

	// Notifier is optional
	Notifier Notifier

	Logger zerolog.Logger
}

// Orchestrator coordinates one chat turn: persist the user message,
// project history, stream the provider reply to the caller, reconcile
// the result into the session log.
type Orchestrator struct {
	store    *session.Store
	provider provider.Provider
	opts     Options
	logger   zerolog.Logger
}

// TurnResult describes a finished turn
type TurnResult struct {
	TurnID    string
	SessionID string
	Reply     string
	Fragments int

	// Persisted is false when the reply was delivered to the caller
	// but the model append failed afterwards
	Persisted bool
}

// NewOrchestrator creates a turn orchestrator
func NewOrchestrator(store *session.Store, prov provider.Provider, opts Options) *Orchestrator {
	observability.EnsureRegistered()
	return &Orchestrator{
		store:    store,
		provider: prov,
		opts:     opts,
		logger:   opts.Logger.With().Str("module", "orchestrator").Logger(),
	}
}

// StreamTurn runs one chat turn, forwarding provider fragments to sink
// as they arrive.
//
// The user message is persisted before the provider is invoked, so a
// provider failure can lose at most the model reply, never the user's
// input. The model reply is persisted only after the stream reaches a
// clean end; a failed or canceled stream appends nothing. If the
// model append itself fails after delivery, the turn still counts as
// delivered: the failure is logged and reported via
// TurnResult.Persisted rather than returned, because the caller has
// already consumed the stream.
func (o *Orchestrator) StreamTurn(ctx context.Context, owner, sessionID, prompt string, sink FragmentSink) (*TurnResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "cannot be empty"}
	}
	if sessionID == "" {
		return nil, &ValidationError{Field: "sessionId", Reason: "cannot be empty"}
	}

	turnID := uuid.NewString()
	logger := o.logger.With().
		Str("turnId", turnID).
		Str("sessionId", sessionID).
		Logger()

	// Write-ahead: the user message is durable before the provider is
	// ever contacted
	if _, err := o.store.GetOrCreate(ctx, sessionID, owner); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, &NotFoundError{SessionID: sessionID}
		}
		observability.RecordTurn("persistence_error", 0)
		return nil, &PersistenceError{Op: "get-or-create", Err: err}
	}

	sess, err := o.store.AppendMessage(ctx, sessionID, session.Message{
		Role:    session.RoleUser,
		Content: prompt,
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, &NotFoundError{SessionID: sessionID}
		}
		observability.RecordTurn("persistence_error", 0)
		return nil, &PersistenceError{Op: "append-user", Err: err}
	}

	// The appended user turn travels as the prompt, not as history
	history := ProjectHistory(sess.Messages)

	start := time.Now()
	stream, err := o.provider.OpenStream(ctx, provider.Request{
		Model:       o.opts.Model,
		System:      o.opts.SystemPrompt,
		History:     history,
		Prompt:      prompt,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		observability.RecordTurn("provider_error", time.Since(start))
		return nil, &ProviderError{Stage: "open", Err: err}
	}
	defer stream.Close()

	result, relayErr := Relay(ctx, stream, sink, o.opts.IdleTimeout)
	if relayErr != nil {
		// All-or-nothing: a partial reply is never persisted
		status := "stream_error"
		if errors.Is(relayErr, context.Canceled) || errors.Is(relayErr, context.DeadlineExceeded) {
			status = "canceled"
		}
		observability.RecordTurn(status, time.Since(start))
		logger.Warn().
			Err(relayErr).
			Int("fragments", result.Fragments).
			Msg("Stream failed, model reply not persisted")
		return nil, relayErr
	}

	turn := &TurnResult{
		TurnID:    turnID,
		SessionID: sessionID,
		Reply:     result.Text,
		Fragments: result.Fragments,
		Persisted: false,
	}

	// Reconcile: persist the accumulated reply. An empty reply is
	// delivered but never stored.
	if result.Text != "" {
		if _, err := o.store.AppendMessage(ctx, sessionID, session.Message{
			Role:    session.RoleModel,
			Content: result.Text,
		}); err != nil {
			// The caller already received and closed the stream; this
			// failure is observed, not surfaced
			perr := &PersistenceError{Op: "append-model", Err: err}
			logger.Error().
				Err(perr).
				Msg("Reply delivered but not persisted")
		} else {
			turn.Persisted = true
		}
	}

	observability.RecordTurn("completed", time.Since(start))
	logger.Info().
		Int("fragments", turn.Fragments).
		Bool("persisted", turn.Persisted).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")

	if o.opts.Notifier != nil {
		o.opts.Notifier.Publish("session.updated", map[string]interface{}{
			"sessionId": sessionID,
		})
	}

	return turn, nil
}

// Generate runs a one-shot, sessionless completion
func (o *Orchestrator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &ValidationError{Field: "prompt", Reason: "cannot be empty"}
	}

	text, err := o.provider.Complete(ctx, provider.Request{
		Model:       o.opts.Model,
		System:      o.opts.SystemPrompt,
		Prompt:      prompt,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		observability.RecordGenerate("error")
		return "", &ProviderError{Stage: "open", Err: err}
	}

	observability.RecordGenerate("ok")
	return text, nil
}
