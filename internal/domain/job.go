package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TriggerType determines when and how often a job fires.
type TriggerType string

// Supported trigger kinds.
const (
	// TriggerDate fires exactly once at a fixed timestamp.
	TriggerDate TriggerType = "date"

	// TriggerInterval fires repeatedly with a fixed period.
	TriggerInterval TriggerType = "interval"

	// TriggerCron fires on a calendar expression.
	TriggerCron TriggerType = "cron"
)

// JobStatus represents the lifecycle state of a scheduled job.
type JobStatus string

// Possible job status values.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job-specific validation errors.
var (
	ErrJobIDEmpty         = errors.New("job ID cannot be empty")
	ErrJobNameEmpty       = errors.New("job name cannot be empty")
	ErrJobFuncEmpty       = errors.New("job function name cannot be empty")
	ErrInvalidTriggerType = errors.New("invalid trigger type")
	ErrInvalidTriggerArgs = errors.New("invalid trigger arguments")
	ErrInvalidJobStatus   = errors.New("invalid job status")
	ErrJobAlreadyTerminal = errors.New("job is in a terminal state")
)

// TriggerArgs carries the parameters for a job trigger. Exactly one field
// group is meaningful depending on the trigger type.
type TriggerArgs struct {
	// RunAt is the firing time for date triggers.
	RunAt *time.Time `json:"run_at,omitempty"`

	// Seconds is the period for interval triggers.
	Seconds int `json:"seconds,omitempty"`

	// Expr is the cron expression for cron triggers (standard 5-field).
	Expr string `json:"expr,omitempty"`
}

// Job is a durable, possibly recurring unit of scheduled work. It survives
// process restart: the scheduler re-registers every non-terminal job from
// the store on startup.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	TriggerType  TriggerType     `json:"trigger_type"`
	TriggerArgs  TriggerArgs     `json:"trigger_args"`
	FuncName     string          `json:"func_name"`
	FuncArgs     json.RawMessage `json:"func_args"`
	MaxInstances int             `json:"max_instances"`
	Status       JobStatus       `json:"status"`
	NextRunTime  *time.Time      `json:"next_run_time,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a new Job with the given name, trigger, and target
// function. It generates a new UUID, sets status pending, and stamps the
// creation time. Returns an error if validation fails.
func NewJob(name string, trigger TriggerType, args TriggerArgs, funcName string, funcArgs json.RawMessage) (*Job, error) {
	job := &Job{
		ID:           uuid.New(),
		Name:         name,
		TriggerType:  trigger,
		TriggerArgs:  args,
		FuncName:     funcName,
		FuncArgs:     funcArgs,
		MaxInstances: 1,
		Status:       JobStatusPending,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrJobIDEmpty
	}

	if j.Name == "" {
		return ErrJobNameEmpty
	}

	if j.FuncName == "" {
		return ErrJobFuncEmpty
	}

	switch j.TriggerType {
	case TriggerDate:
		if j.TriggerArgs.RunAt == nil {
			return ErrInvalidTriggerArgs
		}
	case TriggerInterval:
		if j.TriggerArgs.Seconds <= 0 {
			return ErrInvalidTriggerArgs
		}
	case TriggerCron:
		if j.TriggerArgs.Expr == "" {
			return ErrInvalidTriggerArgs
		}
	default:
		return ErrInvalidTriggerType
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// IsTerminal reports whether the job can never fire again without operator
// intervention. Paused jobs are not terminal: resume re-arms them.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// UpdateStatus sets the job's status and refreshes the UpdatedAt timestamp.
// Returns an error if the new status is invalid.
func (j *Job) UpdateStatus(status JobStatus) error {
	if !isValidJobStatus(status) {
		return ErrInvalidJobStatus
	}

	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobRunStatus represents the outcome state of a single job firing.
type JobRunStatus string

// Possible job run status values.
const (
	JobRunStatusRunning JobRunStatus = "running"
	JobRunStatusSuccess JobRunStatus = "success"
	JobRunStatusFailed  JobRunStatus = "failed"
)

// JobRun is one entry in the append-only execution log. It is created when
// a firing starts and finalized when the firing ends.
type JobRun struct {
	ID        uuid.UUID    `json:"id"`
	JobID     uuid.UUID    `json:"job_id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Status    JobRunStatus `json:"status"`
	Result    string       `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// NewJobRun creates a run entry for the given job in the running state.
func NewJobRun(jobID uuid.UUID) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		JobID:     jobID,
		StartTime: time.Now().UTC(),
		Status:    JobRunStatusRunning,
	}
}

// Finish finalizes the run with the firing outcome.
func (r *JobRun) Finish(result string, err error) {
	now := time.Now().UTC()
	r.EndTime = &now
	if err != nil {
		r.Status = JobRunStatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = JobRunStatusSuccess
	r.Result = result
}
