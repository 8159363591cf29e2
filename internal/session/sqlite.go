// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/turn persistence with automatic schema creation

package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "session-store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite session store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			application TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			created_at  DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_identity
			ON sessions(application, user_id);

		CREATE TABLE IF NOT EXISTS turns (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			query       TEXT NOT NULL,
			org_id      TEXT,
			state       TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME,

			FOREIGN KEY (session_id) REFERENCES sessions(id),
			CHECK (state IN ('pending', 'streaming', 'completed', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_turns_session
			ON turns(session_id, started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ResolveOrCreate returns the session with requestedID when one exists for
// (application, userID), otherwise creates a fresh session. The lookup is
// scoped to the caller's identity so a session can never cross user ids.
func (s *SQLiteStore) ResolveOrCreate(ctx context.Context, application, userID, requestedID string) (*Session, error) {
	if requestedID != "" {
		existing, err := s.getSessionForIdentity(ctx, application, userID, requestedID)
		if err == nil {
			s.logger.Info("using existing session", "session_id", existing.ID, "user_id", userID)
			return existing, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
	}

	sess := &Session{
		ID:          uuid.New().String(),
		Application: application,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, application, user_id, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Application, sess.UserID, sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating session: %v", ErrStoreUnavailable, err)
	}

	s.logger.Info("created session", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// getSessionForIdentity looks up a session by id, constrained to the given identity.
func (s *SQLiteStore) getSessionForIdentity(ctx context.Context, application, userID, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, application, user_id, created_at FROM sessions
		 WHERE id = ? AND application = ? AND user_id = ?`,
		id, application, userID,
	)
	return scanSession(row)
}

// GetSession returns a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, application, user_id, created_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.Application, &sess.UserID, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &sess, nil
}

// ListSessions returns all sessions for (application, userID), oldest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, application, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application, user_id, created_at FROM sessions
		 WHERE application = ? AND user_id = ? ORDER BY created_at`,
		application, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Application, &sess.UserID, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// CreateTurn records a new turn in state pending.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.State == "" {
		turn.State = TurnPending
	}
	if turn.StartedAt.IsZero() {
		turn.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, query, org_id, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Query, turn.OrgID, turn.State, turn.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: creating turn: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// UpdateTurnState transitions a turn to the given state. Terminal states
// (completed, failed) also record the finish time.
func (s *SQLiteStore) UpdateTurnState(ctx context.Context, id, state string) error {
	var result sql.Result
	var err error

	switch state {
	case TurnCompleted, TurnFailed:
		result, err = s.db.ExecContext(ctx,
			`UPDATE turns SET state = ?, finished_at = ? WHERE id = ?`,
			state, time.Now().UTC(), id,
		)
	default:
		result, err = s.db.ExecContext(ctx,
			`UPDATE turns SET state = ? WHERE id = ?`, state, id)
	}
	if err != nil {
		return fmt.Errorf("%w: updating turn: %v", ErrStoreUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking turn update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTurns returns the most recent turns for a session, newest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, org_id, state, started_at, finished_at FROM turns
		 WHERE session_id = ? ORDER BY started_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing turns: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var turn Turn
		var orgID sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Query, &orgID, &turn.State, &turn.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.OrgID = orgID.String
		if finished.Valid {
			turn.FinishedAt = &finished.Time
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
