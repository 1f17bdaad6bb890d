package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrManagerClosed is returned for submissions after shutdown has begun.
var ErrManagerClosed = errors.New("task manager is shut down")

// Auditor mirrors the scheduler's durable bookkeeping for ad-hoc task
// submissions, so scheduled and ad-hoc work are observable uniformly.
// Audit failures are logged and swallowed: they never fail the task.
type Auditor interface {
	// TaskSubmitted records the submission as a one-shot job definition
	// plus an open execution log entry.
	TaskSubmitted(ctx context.Context, t *Task) error

	// TaskFinished finalizes the execution log entry with the task's
	// terminal outcome.
	TaskFinished(ctx context.Context, t *Task) error
}

// ManagerConfig holds configuration for the task manager.
type ManagerConfig struct {
	// ShutdownGrace is how long Shutdown waits for active tasks to reach
	// a terminal state before abandoning them.
	ShutdownGrace time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ShutdownGrace: 30 * time.Second,
	}
}

// Manager owns every submitted task for its lifetime. It is constructed
// once at process start and passed to components explicitly; there are no
// package-level singletons.
type Manager struct {
	pool    *WorkerPool
	config  ManagerConfig
	logger  *slog.Logger
	auditor Auditor

	mu     sync.RWMutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager running blocking work on the given pool.
func NewManager(pool *WorkerPool, config ManagerConfig, logger *slog.Logger) *Manager {
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultManagerConfig().ShutdownGrace
	}

	return &Manager{
		pool:   pool,
		config: config,
		logger: logger,
		tasks:  make(map[string]*Task),
	}
}

// SetAuditor attaches the durable bookkeeping sink used for submissions
// flagged Durable.
func (m *Manager) SetAuditor(a Auditor) {
	m.auditor = a
}

// Pool exposes the underlying worker pool, mainly for stats queries.
func (m *Manager) Pool() *WorkerPool {
	return m.pool
}

// Submit registers the task and starts it in the background, returning its
// handle immediately. Use SubmitWait to suspend until the result instead.
func (m *Manager) Submit(ctx context.Context, spec Spec) (*Task, error) {
	if spec.Fn == nil {
		return nil, errors.New("task callable cannot be nil")
	}

	// The task context is detached from the submitter's: a fire-and-forget
	// task must not die with the request that spawned it.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := newTask(spec, cancel)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrManagerClosed
	}
	m.tasks[t.id.String()] = t
	m.wg.Add(1)
	m.mu.Unlock()

	tasksSubmitted.WithLabelValues(string(t.kind)).Inc()
	tasksTracked.Inc()

	if spec.Durable && m.auditor != nil {
		if err := m.auditor.TaskSubmitted(ctx, t); err != nil {
			m.logger.Warn("failed to record durable task submission",
				"task_id", t.id,
				"description", t.description,
				"error", err)
		}
	}

	go m.run(taskCtx, t, spec)

	return t, nil
}

// SubmitWait submits the task and suspends the caller until it reaches a
// terminal state, returning the result or re-raising the terminal error.
func (m *Manager) SubmitWait(ctx context.Context, spec Spec) (any, error) {
	t, err := m.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	return m.wait(ctx, t)
}

// GetResult suspends until the task is terminal, then returns its stored
// result or error. Calling it again on a terminal task returns the same
// outcome immediately.
func (m *Manager) GetResult(ctx context.Context, taskID string) (any, error) {
	t, ok := m.lookup(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return m.wait(ctx, t)
}

// Get returns the task handle, if the manager still tracks it.
func (m *Manager) Get(taskID string) (*Task, bool) {
	return m.lookup(taskID)
}

// All returns a snapshot of every tracked task.
func (m *Manager) All() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// Cancel requests best-effort cancellation. Tasks not yet started or still
// cooperatively suspended are actually stopped; a callable already running
// on a worker thread cannot be interrupted, so cancellation then only
// stops waiting for it. Cancelling a terminal task is a no-op.
func (m *Manager) Cancel(taskID string) error {
	t, ok := m.lookup(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if t.Status().IsTerminal() {
		return nil
	}

	m.logger.Info("cancelling task",
		"task_id", t.id,
		"kind", t.kind,
		"description", t.description)
	t.cancel()
	return nil
}

// CleanupCompleted removes terminal tasks whose end time is older than
// maxAge and returns the number removed. Active, pending, and recently
// terminal tasks are untouched.
func (m *Manager) CleanupCompleted(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		t.mu.Lock()
		expired := t.status.IsTerminal() && t.endedAt.Before(cutoff)
		t.mu.Unlock()

		if expired {
			delete(m.tasks, id)
			tasksTracked.Dec()
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned up terminal tasks",
			"removed", removed,
			"max_age", maxAge)
	}
	return removed
}

// Shutdown stops accepting submissions and waits up to the configured
// grace period for active tasks to reach a terminal state. Tasks still
// active afterwards are abandoned, not cancelled cleanly.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	m.logger.Info("task manager draining", "grace", m.config.ShutdownGrace)

	select {
	case <-done:
		m.logger.Info("task manager drained")
		return nil
	case <-time.After(m.config.ShutdownGrace):
		abandoned := m.countActive()
		m.logger.Error("shutdown grace period elapsed, abandoning active tasks",
			"abandoned", abandoned)
		return fmt.Errorf("abandoned %d active tasks after %s grace period",
			abandoned, m.config.ShutdownGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookup(taskID string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	return t, ok
}

func (m *Manager) countActive() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, t := range m.tasks {
		if !t.Status().IsTerminal() {
			active++
		}
	}
	return active
}

// wait suspends on the task's done channel, then returns its outcome.
func (m *Manager) wait(ctx context.Context, t *Task) (any, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.Outcome()
}

// run executes the task according to its kind and records the terminal
// outcome exactly once.
func (m *Manager) run(ctx context.Context, t *Task, spec Spec) {
	defer m.wg.Done()

	log := m.logger.With(
		"task_id", t.id,
		"kind", t.kind,
		"description", t.description,
	)

	if !t.markRunning() {
		return
	}
	log.Debug("task started")

	var (
		result any
		err    error
	)

	switch t.kind {
	case KindCooperative:
		result, err = m.runCooperative(ctx, t, spec.Fn)
	default:
		if t.timeout > 0 {
			result, err = m.pool.RunWithTimeout(ctx, t.timeout, spec.Fn)
		} else {
			result, err = m.pool.Run(ctx, spec.Fn)
		}
	}

	status, terminalErr := classify(err, t.timeout)
	if !t.finish(status, result, terminalErr) {
		return
	}

	tasksFinished.WithLabelValues(string(status)).Inc()

	switch status {
	case StatusCompleted:
		log.Info("task completed")
		if spec.OnComplete != nil {
			spec.OnComplete(result)
		}
	default:
		log.Error("task ended abnormally", "status", status, "error", terminalErr)
		if spec.OnError != nil {
			spec.OnError(terminalErr)
		}
	}

	if spec.Durable && m.auditor != nil {
		if auditErr := m.auditor.TaskFinished(context.WithoutCancel(ctx), t); auditErr != nil {
			log.Warn("failed to finalize durable task record", "error", auditErr)
		}
	}
}

// runCooperative awaits the callable directly, optionally under a timeout
// that cancels the wait (and the callable's context) on expiry.
func (m *Manager) runCooperative(ctx context.Context, t *Task, fn Fn) (any, error) {
	execCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	resCh := make(chan outcome, 1)
	go func() {
		result, err := invoke(execCtx, fn)
		resCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resCh:
		return out.result, out.err
	case <-execCtx.Done():
		return nil, execCtx.Err()
	}
}

// classify maps an execution error to the terminal status and the error
// stored for waiters: failures re-raise the original error, while timeout
// and cancellation carry their own synthesized errors.
func classify(err error, timeout time.Duration) (Status, error) {
	switch {
	case err == nil:
		return StatusCompleted, nil
	case errors.Is(err, ErrPoolTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
	case errors.Is(err, context.Canceled):
		return StatusCancelled, ErrTaskCancelled
	default:
		return StatusFailed, err
	}
}
