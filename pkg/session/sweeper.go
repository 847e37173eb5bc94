package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/naila/sayra/internal/observability"
)

// SweeperConfig configures the retention sweeper
type SweeperConfig struct {
	// MaxAge is how long a session may stay idle before it is removed
	MaxAge time.Duration

	// Schedule is a standard 5-field cron expression
	Schedule string

	// ArchiveDir, if set, receives a JSONL export of each session
	// before it is removed
	ArchiveDir string
}

// Sweeper periodically removes sessions that have been idle past the
// configured age, optionally archiving them first.
type Sweeper struct {
	store  *Store
	cfg    SweeperConfig
	cron   *cron.Cron
	logger zerolog.Logger
}

// archiveLine is one line of a session archive file
type archiveLine struct {
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

// NewSweeper creates a retention sweeper. Start must be called to
// begin sweeping.
func NewSweeper(store *Store, cfg SweeperConfig, logger zerolog.Logger) (*Sweeper, error) {
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("sweeper max age must be positive")
	}
	if cfg.Schedule == "" {
		return nil, fmt.Errorf("sweeper schedule is required")
	}

	s := &Sweeper{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: logger.With().Str("module", "sweeper").Logger(),
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start begins the sweep schedule
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info().
		Dur("maxAge", s.cfg.MaxAge).
		Str("schedule", s.cfg.Schedule).
		Msg("Retention sweeper started")
}

// Stop stops the sweep schedule, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Retention sweeper stopped")
}

func (s *Sweeper) runOnce() {
	if err := s.Sweep(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Sweep failed")
	}
}

// Sweep removes all sessions idle past the configured age. Exported so
// operators can trigger it ahead of schedule.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.MaxAge)

	expired, err := s.store.IdleBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	swept := 0
	for _, sess := range expired {
		if s.cfg.ArchiveDir != "" {
			if err := s.archive(sess); err != nil {
				s.logger.Warn().
					Err(err).
					Str("sessionId", sess.SessionID).
					Msg("Failed to archive session, keeping it")
				continue
			}
		}

		if err := s.store.Purge(ctx, sess.SessionID); err != nil {
			s.logger.Warn().
				Err(err).
				Str("sessionId", sess.SessionID).
				Msg("Failed to purge session")
			continue
		}
		swept++
	}

	observability.RecordSweep(swept)
	s.logger.Info().
		Int("swept", swept).
		Time("cutoff", cutoff).
		Msg("Sweep completed")

	return nil
}

// archive writes the session's message log as JSONL, one message per
// line, using a temp file and rename so a partial write never leaves a
// truncated archive.
func (s *Sweeper) archive(sess *Session) error {
	if err := os.MkdirAll(s.cfg.ArchiveDir, 0700); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	archivePath := filepath.Join(s.cfg.ArchiveDir, sess.SessionID+".jsonl")
	tempPath := archivePath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	for _, msg := range sess.Messages {
		line := archiveLine{
			SessionID: sess.SessionID,
			Message:   msg,
		}
		data, err := json.Marshal(line)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write archive: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, archivePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	s.logger.Debug().
		Str("sessionId", sess.SessionID).
		Int("messages", len(sess.Messages)).
		Msg("Session archived")

	return nil
}
