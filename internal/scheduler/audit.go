package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/store"
	"github.com/lightlogic3/popflow/internal/task"
)

// adhocFuncName marks job rows that mirror ad-hoc task submissions
// rather than registry functions. The scheduler never arms them: they
// exist only for the execution log.
const adhocFuncName = "adhoc"

// TaskAuditor records durable ad-hoc task submissions in the same job
// tables the scheduler uses, so the execution history of scheduled and
// ad-hoc work reads uniformly. It implements task.Auditor.
type TaskAuditor struct {
	jobs store.JobStore
	runs store.JobRunStore

	mu   sync.Mutex
	open map[uuid.UUID]*domain.JobRun
}

var _ task.Auditor = (*TaskAuditor)(nil)

// NewTaskAuditor creates an auditor writing to the given job stores.
func NewTaskAuditor(jobs store.JobStore, runs store.JobRunStore) *TaskAuditor {
	return &TaskAuditor{
		jobs: jobs,
		runs: runs,
		open: make(map[uuid.UUID]*domain.JobRun),
	}
}

// TaskSubmitted records the submission as a one-shot job plus an open run
// entry. The job reuses the task's ID so the two records correlate.
func (a *TaskAuditor) TaskSubmitted(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	name := t.Description()
	if name == "" {
		name = "ad-hoc task"
	}

	job := &domain.Job{
		ID:           t.ID(),
		Name:         name,
		TriggerType:  domain.TriggerDate,
		TriggerArgs:  domain.TriggerArgs{RunAt: &now},
		FuncName:     adhocFuncName,
		MaxInstances: 1,
		Status:       domain.JobStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save ad-hoc job record: %w", err)
	}

	run := domain.NewJobRun(job.ID)
	if err := a.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create ad-hoc run entry: %w", err)
	}

	a.mu.Lock()
	a.open[t.ID()] = run
	a.mu.Unlock()
	return nil
}

// TaskFinished finalizes the run entry and the mirrored job row with the
// task's terminal outcome.
func (a *TaskAuditor) TaskFinished(ctx context.Context, t *task.Task) error {
	a.mu.Lock()
	run, ok := a.open[t.ID()]
	delete(a.open, t.ID())
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no open run entry for task %s", t.ID())
	}

	_, taskErr := t.Outcome()
	result := ""
	if taskErr == nil {
		result = string(t.Status())
	}
	run.Finish(result, taskErr)
	if err := a.runs.Finish(ctx, run); err != nil {
		return fmt.Errorf("finalize ad-hoc run entry: %w", err)
	}

	job, err := a.jobs.GetByID(ctx, t.ID())
	if err != nil {
		return err
	}
	status := domain.JobStatusCompleted
	if taskErr != nil {
		status = domain.JobStatusFailed
	}
	if err := job.UpdateStatus(status); err != nil {
		return err
	}
	if err := a.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update ad-hoc job record: %w", err)
	}
	return nil
}
