package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
)

// GameSessionStore defines the interface for persisting game sessions.
type GameSessionStore interface {
	// Create saves a new game session.
	Create(ctx context.Context, gs *domain.GameSession) error

	// GetByID retrieves a session by its unique ID.
	// Returns ErrGameSessionNotFound if the session does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GameSession, error)

	// UpdateProgress writes score, round, status, last message time, and
	// summary in a single atomic statement, guarded on the row still being
	// in progress. This is the status-critical write path: terminal rows
	// are never overwritten. Returns ErrUpdateFailed when the guard
	// rejects the write.
	UpdateProgress(ctx context.Context, gs *domain.GameSession) error

	// FindInProgressByUser returns the user's in-progress session for the
	// given subtask, if any.
	FindInProgressByUser(ctx context.Context, userID, subtaskID uuid.UUID) (*domain.GameSession, error)

	// WithTx returns a new GameSessionStore instance that uses the
	// provided transaction.
	WithTx(tx *sql.Tx) GameSessionStore
}

// GameMessageStore defines the interface for the append-only message log.
type GameMessageStore interface {
	// Create appends a message to the log.
	Create(ctx context.Context, msg *domain.GameMessage) error

	// ListBySession retrieves every message of a session in creation
	// order; used to rebuild conversation memory after cache eviction.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.GameMessage, error)

	// WithTx returns a new GameMessageStore instance that uses the
	// provided transaction.
	WithTx(tx *sql.Tx) GameMessageStore
}

// SubtaskStore defines the interface for persisting subtasks and the
// user/subtask completion links that drive subtask selection.
type SubtaskStore interface {
	// Create saves a new subtask.
	Create(ctx context.Context, st *domain.Subtask) error

	// GetByID retrieves a subtask by its unique ID.
	// Returns ErrSubtaskNotFound if the subtask does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subtask, error)

	// FirstInProgressForUser returns the oldest subtask the user has
	// started (linked, not completed), or ErrSubtaskNotFound.
	FirstInProgressForUser(ctx context.Context, userID uuid.UUID) (*domain.Subtask, error)

	// RandomUnfinishedForUser returns a random subtask the user has not
	// completed yet, or ErrSubtaskNotFound when everything is done.
	RandomUnfinishedForUser(ctx context.Context, userID uuid.UUID) (*domain.Subtask, error)

	// LinkUser records that the user has started the subtask. Linking an
	// already-linked pair is a no-op.
	LinkUser(ctx context.Context, userID, subtaskID uuid.UUID) error

	// MarkCompleted flags the user/subtask link as completed so future
	// selection queries exclude it.
	MarkCompleted(ctx context.Context, userID, subtaskID uuid.UUID) error

	// CountByTask returns the number of subtasks under a game task; used
	// by the recurring generation job to decide whether to top up.
	CountByTask(ctx context.Context, taskID uuid.UUID) (int, error)

	// WithTx returns a new SubtaskStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) SubtaskStore
}
