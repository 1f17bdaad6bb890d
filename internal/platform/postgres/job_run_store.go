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

// PostgresJobRunStore implements the store.JobRunStore interface using
// PostgreSQL. The execution log is append-only: rows are created when a
// firing starts and finalized exactly once when it ends.
type PostgresJobRunStore struct {
	db store.DBTX
}

// NewPostgresJobRunStore creates a new PostgresJobRunStore.
func NewPostgresJobRunStore(db store.DBTX) *PostgresJobRunStore {
	return &PostgresJobRunStore{
		db: db,
	}
}

// Create appends a new run entry.
func (s *PostgresJobRunStore) Create(ctx context.Context, run *domain.JobRun) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO job_runs (id, job_id, start_time, end_time, status, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.JobID,
		run.StartTime,
		run.EndTime,
		run.Status,
		run.Result,
		run.Error,
	)

	if err != nil {
		log.Error("failed to create job run",
			"run_id", run.ID,
			"job_id", run.JobID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// Finish finalizes a run entry with its outcome.
func (s *PostgresJobRunStore) Finish(ctx context.Context, run *domain.JobRun) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE job_runs
		SET end_time = $1, status = $2, result = $3, error = $4
		WHERE id = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		run.EndTime,
		run.Status,
		run.Result,
		run.Error,
		run.ID,
	)

	if err != nil {
		log.Error("failed to finalize job run",
			"run_id", run.ID,
			"job_id", run.JobID,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		log.Warn("no job run found to finalize", "run_id", run.ID)
		return nil
	}

	return nil
}

// ListByJob retrieves the execution history of one job, most recent first.
func (s *PostgresJobRunStore) ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, job_id, start_time, end_time, status, result, error
		FROM job_runs
		WHERE job_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.JobRun
	for rows.Next() {
		var (
			run     domain.JobRun
			endTime sql.NullTime
		)
		if err := rows.Scan(
			&run.ID,
			&run.JobID,
			&run.StartTime,
			&endTime,
			&run.Status,
			&run.Result,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job run row: %w", err)
		}
		if endTime.Valid {
			t := endTime.Time
			run.EndTime = &t
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return runs, nil
}

// WithTx returns a new JobRunStore instance that uses the provided transaction.
func (s *PostgresJobRunStore) WithTx(tx *sql.Tx) store.JobRunStore {
	return &PostgresJobRunStore{db: tx}
}
