package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/scheduler"
)

// Built-in maintenance job function names.
const (
	funcSessionReap     = "session_reap"
	funcTaskCleanup     = "task_cleanup"
	funcSubtaskGenerate = "subtask_generate"
)

// registerJobFuncs binds every schedulable function. Job definitions in
// the store reference these names; an unregistered name is rejected when
// a job is added.
func (app *application) registerJobFuncs(registry *scheduler.Registry) error {
	if err := registry.Register(funcSessionReap, app.runSessionReap); err != nil {
		return err
	}
	if err := registry.Register(funcTaskCleanup, app.runTaskCleanup); err != nil {
		return err
	}
	return registry.Register(funcSubtaskGenerate, app.runSubtaskGenerate)
}

// runSessionReap sweeps idle sessions out of the cache.
func (app *application) runSessionReap(ctx context.Context, _ json.RawMessage) (string, error) {
	threshold := time.Hour
	if app.config.Game.SessionIdleMinutes > 0 {
		threshold = time.Duration(app.config.Game.SessionIdleMinutes) * time.Minute
	}

	reaped, err := app.sessions.ReapIdle(ctx, "game", threshold)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("reaped %d idle sessions", reaped), nil
}

// runTaskCleanup drops terminal tasks older than the retention window.
func (app *application) runTaskCleanup(_ context.Context, _ json.RawMessage) (string, error) {
	maxAge := 60 * time.Minute
	if app.config.Task.CleanupMaxAgeMinutes > 0 {
		maxAge = time.Duration(app.config.Task.CleanupMaxAgeMinutes) * time.Minute
	}

	removed := app.manager.CleanupCompleted(maxAge)
	return fmt.Sprintf("removed %d terminal tasks", removed), nil
}

// subtaskGenerateArgs parameterizes the subtask top-up job.
type subtaskGenerateArgs struct {
	TaskID      uuid.UUID `json:"task_id"`
	MinSubtasks int       `json:"min_subtasks"`
}

// runSubtaskGenerate tops up the subtask pool of one game task.
func (app *application) runSubtaskGenerate(ctx context.Context, raw json.RawMessage) (string, error) {
	var args subtaskGenerateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decode args: %w", err)
	}
	if args.TaskID == uuid.Nil {
		return "", fmt.Errorf("task_id is required")
	}
	if args.MinSubtasks <= 0 {
		args.MinSubtasks = 5
	}

	count, err := app.subtasks.CountByTask(ctx, args.TaskID)
	if err != nil {
		return "", fmt.Errorf("count subtasks: %w", err)
	}
	if count >= args.MinSubtasks {
		return fmt.Sprintf("pool full (%d/%d)", count, args.MinSubtasks), nil
	}

	created := 0
	for i := count; i < args.MinSubtasks; i++ {
		st, err := app.creator.CreateSubtask(ctx, args.TaskID)
		if err != nil {
			return "", fmt.Errorf("generate subtask: %w", err)
		}
		if err := app.subtasks.Create(ctx, st); err != nil {
			return "", fmt.Errorf("save subtask: %w", err)
		}
		created++
	}
	return fmt.Sprintf("generated %d subtasks", created), nil
}

// ensureMaintenanceJobs adds the recurring reap and cleanup jobs unless
// the store already carries them (from a previous run).
func (app *application) ensureMaintenanceJobs(ctx context.Context) error {
	existing, err := app.jobStore.List(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool)
	for _, job := range existing {
		if !job.IsTerminal() {
			present[job.FuncName] = true
		}
	}

	wanted := []struct {
		name    string
		fn      string
		seconds int
	}{
		{"idle session reap", funcSessionReap, 300},
		{"terminal task cleanup", funcTaskCleanup, 600},
	}
	for _, w := range wanted {
		if present[w.fn] {
			continue
		}
		job, err := domain.NewJob(w.name, domain.TriggerInterval,
			domain.TriggerArgs{Seconds: w.seconds}, w.fn, nil)
		if err != nil {
			return err
		}
		if err := app.scheduler.AddJob(ctx, job); err != nil {
			return fmt.Errorf("add %s job: %w", w.fn, err)
		}
	}
	return nil
}
