package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/naila/sayra/internal/observability"
)

// ErrNotFound is returned when a referenced session does not exist or
// is not visible to the given owner.
var ErrNotFound = errors.New("session not found")

// Store is a SQLite-backed session store
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (and if needed creates) the session database
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if path == "" {
		return nil, errors.New("store path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_fk=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Session store opened")
	s.updateActiveSessionsMetric(context.Background())

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		owner      TEXT NOT NULL,
		title      TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner_updated ON sessions(owner, updated_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// validateSessionID validates the session identifier
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}
	if strings.Contains(sessionID, "\x00") {
		return errors.New("session id cannot contain null bytes")
	}
	return nil
}

// GetOrCreate returns the session for sessionID scoped to owner,
// creating it with an empty message log if it does not exist. The
// insert is a single upsert, so concurrent calls with the same fresh
// sessionID yield exactly one session.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, owner string) (*Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, owner, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Owner != owner {
		// The id exists but belongs to someone else
		return nil, ErrNotFound
	}

	s.updateActiveSessionsMetric(ctx)
	return sess, nil
}

// Get returns the session for sessionID scoped to owner
func (s *Store) Get(ctx context.Context, sessionID, owner string) (*Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Owner != owner {
		return nil, ErrNotFound
	}
	return sess, nil
}

// AppendMessage atomically appends one message to the session log and
// bumps updated_at. It returns ErrNotFound if the session no longer
// exists, e.g. when it was deleted mid-turn.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg Message) (*Session, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if msg.Role == "" {
		return nil, errors.New("message role cannot be empty")
	}
	if msg.Content == "" {
		return nil, errors.New("message content cannot be empty")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	start := time.Now()
	defer func() {
		observability.RecordSessionAppend(time.Since(start))
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
		msg.Timestamp, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, created_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, msg.Timestamp,
	); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	s.logger.Debug().
		Str("sessionId", sessionID).
		Str("role", msg.Role).
		Msg("Message appended")

	return s.load(ctx, sessionID)
}

// List returns session summaries for owner, newest-updated first. The
// summary title is the derived display title.
func (s *Store) List(ctx context.Context, owner string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.title, s.created_at, s.updated_at,
		       COALESCE((
		           SELECT m.content FROM messages m
		           WHERE m.session_id = s.session_id AND m.role = ?
		           ORDER BY m.id LIMIT 1
		       ), '')
		FROM sessions s
		WHERE s.owner = ?
		ORDER BY s.updated_at DESC, s.session_id
		LIMIT ?`,
		RoleUser, owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			summary   Summary
			title     sql.NullString
			firstUser string
		)
		if err := rows.Scan(&summary.SessionID, &title, &summary.CreatedAt, &summary.UpdatedAt, &firstUser); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		summary.Title = DisplayTitle(title.String, firstUser)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return summaries, nil
}

// Rename sets the stored title of a session
func (s *Store) Rename(ctx context.Context, sessionID, owner, title string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE session_id = ? AND owner = ?`,
		strings.TrimSpace(title), time.Now().UTC(), sessionID, owner,
	)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Info().Str("sessionId", sessionID).Msg("Session renamed")
	return nil
}

// Delete removes a session and its messages entirely
func (s *Store) Delete(ctx context.Context, sessionID, owner string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ? AND owner = ?`,
		sessionID, owner,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.updateActiveSessionsMetric(ctx)
	s.logger.Info().Str("sessionId", sessionID).Msg("Session deleted")
	return nil
}

// IdleBefore returns full sessions whose last update is older than
// cutoff, for the retention sweeper.
func (s *Store) IdleBefore(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE updated_at < ? ORDER BY updated_at`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Purge removes a session regardless of owner. Used by the retention
// sweeper only; callers acting for a user go through Delete.
func (s *Store) Purge(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("failed to purge session: %w", err)
	}
	s.updateActiveSessionsMetric(ctx)
	return nil
}

// Count returns the number of stored sessions
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// load fetches a session row and its full message log without an owner
// check.
func (s *Store) load(ctx context.Context, sessionID string) (*Session, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	sess := &Session{SessionID: sessionID}
	var title sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT owner, title, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&sess.Owner, &title, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.Title = title.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	sess.Messages = []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return sess, nil
}

func (s *Store) updateActiveSessionsMetric(ctx context.Context) {
	n, err := s.Count(ctx)
	if err != nil {
		return
	}
	observability.SetActiveSessions(n)
}
