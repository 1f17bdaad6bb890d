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

// PostgresSubtaskStore implements the store.SubtaskStore interface using
// PostgreSQL.
type PostgresSubtaskStore struct {
	db store.DBTX
}

// NewPostgresSubtaskStore creates a new PostgresSubtaskStore.
func NewPostgresSubtaskStore(db store.DBTX) *PostgresSubtaskStore {
	return &PostgresSubtaskStore{
		db: db,
	}
}

const subtaskColumns = `id, task_id, title, objective, target_score, max_rounds, created_at`

// Create saves a new subtask.
func (s *PostgresSubtaskStore) Create(ctx context.Context, st *domain.Subtask) error {
	log := logger.FromContext(ctx)

	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO subtasks (` + subtaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		st.ID,
		st.TaskID,
		st.Title,
		st.Objective,
		st.TargetScore,
		st.MaxRounds,
		st.CreatedAt,
	)

	if err != nil {
		log.Error("failed to create subtask",
			"subtask_id", st.ID,
			"task_id", st.TaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a subtask by its unique ID.
func (s *PostgresSubtaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subtask, error) {
	query := `SELECT ` + subtaskColumns + ` FROM subtasks WHERE id = $1`

	st, err := scanSubtask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrSubtaskNotFound
		}
		return nil, MapError(err)
	}

	return st, nil
}

// FirstInProgressForUser returns the oldest subtask the user has started but
// not completed.
func (s *PostgresSubtaskStore) FirstInProgressForUser(ctx context.Context, userID uuid.UUID) (*domain.Subtask, error) {
	query := `
		SELECT s.id, s.task_id, s.title, s.objective, s.target_score, s.max_rounds, s.created_at
		FROM subtasks s
		JOIN user_subtasks us ON us.subtask_id = s.id
		WHERE us.user_id = $1 AND us.completed = FALSE
		ORDER BY us.created_at
		LIMIT 1
	`

	st, err := scanSubtask(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrSubtaskNotFound
		}
		return nil, MapError(err)
	}

	return st, nil
}

// RandomUnfinishedForUser returns a random subtask the user has not
// completed yet.
func (s *PostgresSubtaskStore) RandomUnfinishedForUser(ctx context.Context, userID uuid.UUID) (*domain.Subtask, error) {
	query := `
		SELECT ` + subtaskColumns + `
		FROM subtasks
		WHERE id NOT IN (
			SELECT subtask_id FROM user_subtasks
			WHERE user_id = $1 AND completed = TRUE
		)
		ORDER BY random()
		LIMIT 1
	`

	st, err := scanSubtask(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrSubtaskNotFound
		}
		return nil, MapError(err)
	}

	return st, nil
}

// LinkUser records that the user has started the subtask. Linking an
// already-linked pair is a no-op.
func (s *PostgresSubtaskStore) LinkUser(ctx context.Context, userID, subtaskID uuid.UUID) error {
	query := `
		INSERT INTO user_subtasks (user_id, subtask_id, completed, created_at)
		VALUES ($1, $2, FALSE, now())
		ON CONFLICT (user_id, subtask_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, userID, subtaskID); err != nil {
		return MapError(err)
	}

	return nil
}

// MarkCompleted flags the user/subtask link as completed.
func (s *PostgresSubtaskStore) MarkCompleted(ctx context.Context, userID, subtaskID uuid.UUID) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE user_subtasks
		SET completed = TRUE
		WHERE user_id = $1 AND subtask_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, userID, subtaskID)
	if err != nil {
		log.Error("failed to mark subtask completed",
			"user_id", userID,
			"subtask_id", subtaskID,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		log.Warn("no user/subtask link to mark completed",
			"user_id", userID,
			"subtask_id", subtaskID)
		return nil
	}

	return nil
}

// CountByTask returns the number of subtasks under a game task.
func (s *PostgresSubtaskStore) CountByTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM subtasks WHERE task_id = $1`, taskID,
	).Scan(&count)
	if err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// WithTx returns a new SubtaskStore instance that uses the provided
// transaction.
func (s *PostgresSubtaskStore) WithTx(tx *sql.Tx) store.SubtaskStore {
	return &PostgresSubtaskStore{db: tx}
}

func scanSubtask(row rowScanner) (*domain.Subtask, error) {
	var st domain.Subtask

	err := row.Scan(
		&st.ID,
		&st.TaskID,
		&st.Title,
		&st.Objective,
		&st.TargetScore,
		&st.MaxRounds,
		&st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &st, nil
}
