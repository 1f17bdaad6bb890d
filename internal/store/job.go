package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
)

// JobStore defines the interface for persisting job definitions.
type JobStore interface {
	// Save inserts the job definition, replacing any existing job with the
	// same ID.
	Save(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// Update saves changes to an existing job (status, next run time, ...).
	Update(ctx context.Context, job *domain.Job) error

	// Delete removes a job definition. Its execution log is kept.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListActive retrieves every job whose status is not terminal
	// (completed/failed excluded); used by the scheduler at startup.
	ListActive(ctx context.Context) ([]*domain.Job, error)

	// List retrieves all job definitions.
	List(ctx context.Context) ([]*domain.Job, error)

	// WithTx returns a new JobStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) JobStore
}

// JobRunStore defines the interface for the append-only job execution log.
type JobRunStore interface {
	// Create appends a new run entry (normally in the running state).
	Create(ctx context.Context, run *domain.JobRun) error

	// Finish finalizes a run entry with its end time, status, and
	// result or error text.
	Finish(ctx context.Context, run *domain.JobRun) error

	// ListByJob retrieves the execution history of one job, most recent
	// first.
	ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.JobRun, error)

	// WithTx returns a new JobRunStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) JobRunStore
}
