// ABOUTME: Store interface and data types for session and turn persistence
// ABOUTME: Defines Session, Turn structs and the Store interface for database operations

package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// It is a request-level failure: the caller's turn fails, the process keeps serving.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Session identifies a continuous conversation for one user identity.
// The session id is immutable once assigned.
type Session struct {
	ID          string
	Application string
	UserID      string
	CreatedAt   time.Time
}

// Turn state constants. A turn transitions pending -> streaming on the first
// snapshot, streaming -> completed on end-of-turn, and any state -> failed on
// an unrecoverable error.
const (
	TurnPending   = "pending"
	TurnStreaming = "streaming"
	TurnCompleted = "completed"
	TurnFailed    = "failed"
)

// Turn records one query/answer exchange within a session.
type Turn struct {
	ID         string
	SessionID  string
	Query      string
	OrgID      string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store defines the interface for session and turn persistence
type Store interface {
	// ResolveOrCreate returns the session with requestedID when it exists for
	// (application, userID), otherwise creates a new session. It never returns
	// a session belonging to a different user identity.
	ResolveOrCreate(ctx context.Context, application, userID, requestedID string) (*Session, error)

	// GetSession returns a session by id.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns all sessions for (application, userID).
	ListSessions(ctx context.Context, application, userID string) ([]*Session, error)

	// Turns (audit trail of exchanges)
	CreateTurn(ctx context.Context, turn *Turn) error
	UpdateTurnState(ctx context.Context, id, state string) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]*Turn, error)

	// Close releases any resources held by the store
	Close() error
}
