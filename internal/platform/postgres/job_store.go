package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/platform/logger"
	"github.com/lightlogic3/popflow/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

// Save inserts the job definition, replacing any existing job with the same ID.
func (s *PostgresJobStore) Save(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	triggerArgs, err := json.Marshal(job.TriggerArgs)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger args: %w", err)
	}

	query := `
		INSERT INTO jobs (id, name, trigger_type, trigger_args, func_name, func_args,
		                  max_instances, status, next_run_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    trigger_type = EXCLUDED.trigger_type,
		    trigger_args = EXCLUDED.trigger_args,
		    func_name = EXCLUDED.func_name,
		    func_args = EXCLUDED.func_args,
		    max_instances = EXCLUDED.max_instances,
		    status = EXCLUDED.status,
		    next_run_time = EXCLUDED.next_run_time,
		    updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Name,
		job.TriggerType,
		triggerArgs,
		job.FuncName,
		nullableJSON(job.FuncArgs),
		job.MaxInstances,
		job.Status,
		job.NextRunTime,
		job.CreatedAt,
		now,
	)

	if err != nil {
		log.Error("failed to save job",
			"job_id", job.ID,
			"job_name", job.Name,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a job by its unique ID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, name, trigger_type, trigger_args, func_name, func_args,
		       max_instances, status, next_run_time, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}

	return job, nil
}

// Update saves changes to an existing job.
func (s *PostgresJobStore) Update(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, next_run_time = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		job.Status,
		job.NextRunTime,
		time.Now().UTC(),
		job.ID,
	)

	if err != nil {
		log.Error("failed to update job",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// Delete removes a job definition.
func (s *PostgresJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	return nil
}

// ListActive retrieves every job whose status is not terminal.
func (s *PostgresJobStore) ListActive(ctx context.Context) ([]*domain.Job, error) {
	query := `
		SELECT id, name, trigger_type, trigger_args, func_name, func_args,
		       max_instances, status, next_run_time, created_at, updated_at
		FROM jobs
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at
	`

	return s.queryJobs(ctx, query, domain.JobStatusCompleted, domain.JobStatusFailed)
}

// List retrieves all job definitions.
func (s *PostgresJobStore) List(ctx context.Context) ([]*domain.Job, error) {
	query := `
		SELECT id, name, trigger_type, trigger_args, func_name, func_args,
		       max_instances, status, next_run_time, created_at, updated_at
		FROM jobs
		ORDER BY created_at
	`

	return s.queryJobs(ctx, query)
}

// WithTx returns a new JobStore instance that uses the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return jobs, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning code.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		triggerArgs []byte
		funcArgs    sql.NullString
		nextRun     sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Name,
		&job.TriggerType,
		&triggerArgs,
		&job.FuncName,
		&funcArgs,
		&job.MaxInstances,
		&job.Status,
		&nextRun,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerArgs, &job.TriggerArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger args: %w", err)
	}

	if funcArgs.Valid {
		job.FuncArgs = json.RawMessage(funcArgs.String)
	}

	if nextRun.Valid {
		t := nextRun.Time
		job.NextRunTime = &t
	}

	return &job, nil
}

// nullableJSON converts an empty raw message to NULL so the jsonb column
// does not end up with invalid empty input.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
