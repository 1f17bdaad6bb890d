package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/platform/logger"
	"github.com/lightlogic3/popflow/internal/store"
)

// PostgresGameSessionStore implements the store.GameSessionStore interface
// using PostgreSQL.
type PostgresGameSessionStore struct {
	db store.DBTX
}

// NewPostgresGameSessionStore creates a new PostgresGameSessionStore.
func NewPostgresGameSessionStore(db store.DBTX) *PostgresGameSessionStore {
	return &PostgresGameSessionStore{
		db: db,
	}
}

const gameSessionColumns = `id, user_id, subtask_id, task_id, status,
	current_score, current_round, max_rounds, target_score,
	last_message_time, summary, created_at, updated_at`

// Create saves a new game session.
func (s *PostgresGameSessionStore) Create(ctx context.Context, gs *domain.GameSession) error {
	log := logger.FromContext(ctx)

	if err := gs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO game_sessions (` + gameSessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		gs.ID,
		gs.UserID,
		gs.SubtaskID,
		gs.TaskID,
		gs.Status,
		gs.CurrentScore,
		gs.CurrentRound,
		gs.MaxRounds,
		gs.TargetScore,
		gs.LastMessageTime,
		gs.Summary,
		gs.CreatedAt,
		gs.UpdatedAt,
	)

	if err != nil {
		log.Error("failed to create game session",
			"session_id", gs.ID,
			"user_id", gs.UserID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a session by its unique ID.
func (s *PostgresGameSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GameSession, error) {
	query := `SELECT ` + gameSessionColumns + ` FROM game_sessions WHERE id = $1`

	gs, err := scanGameSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrGameSessionNotFound
		}
		return nil, MapError(err)
	}

	return gs, nil
}

// UpdateProgress writes score, round, status, last message time, and summary
// in a single atomic statement. The guard on status keeps terminal rows
// immutable: a concurrent completion wins and later writes are rejected
// with ErrUpdateFailed.
func (s *PostgresGameSessionStore) UpdateProgress(ctx context.Context, gs *domain.GameSession) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE game_sessions
		SET status = $1,
		    current_score = $2,
		    current_round = $3,
		    last_message_time = $4,
		    summary = $5,
		    updated_at = $6
		WHERE id = $7 AND status = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		gs.Status,
		gs.CurrentScore,
		gs.CurrentRound,
		gs.LastMessageTime,
		gs.Summary,
		gs.UpdatedAt,
		gs.ID,
		domain.GameStatusInProgress,
	)

	if err != nil {
		log.Error("failed to update game session progress",
			"session_id", gs.ID,
			"status", gs.Status.String(),
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: session %s is not in progress", store.ErrUpdateFailed, gs.ID)
	}

	return nil
}

// FindInProgressByUser returns the user's in-progress session for the given
// subtask, if any.
func (s *PostgresGameSessionStore) FindInProgressByUser(ctx context.Context, userID, subtaskID uuid.UUID) (*domain.GameSession, error) {
	query := `
		SELECT ` + gameSessionColumns + `
		FROM game_sessions
		WHERE user_id = $1 AND subtask_id = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	gs, err := scanGameSession(s.db.QueryRowContext(ctx, query, userID, subtaskID, domain.GameStatusInProgress))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrGameSessionNotFound
		}
		return nil, MapError(err)
	}

	return gs, nil
}

// WithTx returns a new GameSessionStore instance that uses the provided
// transaction.
func (s *PostgresGameSessionStore) WithTx(tx *sql.Tx) store.GameSessionStore {
	return &PostgresGameSessionStore{db: tx}
}

func scanGameSession(row rowScanner) (*domain.GameSession, error) {
	var gs domain.GameSession

	err := row.Scan(
		&gs.ID,
		&gs.UserID,
		&gs.SubtaskID,
		&gs.TaskID,
		&gs.Status,
		&gs.CurrentScore,
		&gs.CurrentRound,
		&gs.MaxRounds,
		&gs.TargetScore,
		&gs.LastMessageTime,
		&gs.Summary,
		&gs.CreatedAt,
		&gs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &gs, nil
}
