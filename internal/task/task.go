package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values. Pending and running are transient; the rest
// are terminal and permit no further transitions.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Kind selects the execution strategy for a task at submit time.
type Kind string

// Task kinds.
const (
	// KindCooperative work runs in its own goroutine and is expected to
	// honor context cancellation, so it can actually be stopped.
	KindCooperative Kind = "cooperative"

	// KindBlocking work is routed through the bounded worker pool; once
	// dispatched it cannot be interrupted.
	KindBlocking Kind = "blocking"
)

// Task runtime errors. Timeout and cancellation are distinct terminal
// outcomes carrying their own errors; a failed task re-raises its original
// error to waiters.
var (
	ErrTaskNotFound  = errors.New("task information unavailable")
	ErrTaskTimeout   = errors.New("task timed out")
	ErrTaskCancelled = errors.New("task cancelled")
)

// Spec describes one unit of work handed to the manager.
type Spec struct {
	// Fn is the callable to run.
	Fn Fn

	// Kind selects cooperative or blocking execution. Defaults to
	// blocking, the safe assumption for unknown callables.
	Kind Kind

	// Timeout, when positive, bounds how long a waiter is suspended on
	// the task. Exceeding it yields the timeout terminal status without
	// stopping in-flight blocking work.
	Timeout time.Duration

	// Description is a human-readable label used in logs and listings.
	Description string

	// Durable additionally mirrors scheduler bookkeeping for this
	// submission: a job audit record plus an execution log entry.
	Durable bool

	// OnComplete, when set, fires after the task completes successfully.
	OnComplete func(result any)

	// OnError, when set, fires after the task reaches failed, timeout,
	// or cancelled.
	OnError func(err error)
}

// Task is one unit of submitted work tracked through the status state
// machine. It is owned exclusively by the Manager for its lifetime and is
// destroyed by periodic cleanup once terminal and older than the retention
// window.
type Task struct {
	id          uuid.UUID
	kind        Kind
	description string
	timeout     time.Duration

	// cancel stops the task's context; for blocking work this only
	// detaches the waiter.
	cancel context.CancelFunc

	// done is closed exactly once when the task reaches a terminal state.
	done chan struct{}

	mu        sync.Mutex
	status    Status
	startedAt time.Time
	endedAt   time.Time
	result    any
	err       error
}

func newTask(spec Spec, cancel context.CancelFunc) *Task {
	kind := spec.Kind
	if kind == "" {
		kind = KindBlocking
	}
	return &Task{
		id:          uuid.New(),
		kind:        kind,
		description: spec.Description,
		timeout:     spec.Timeout,
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      StatusPending,
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() uuid.UUID {
	return t.id
}

// Kind returns the task's execution strategy.
func (t *Task) Kind() Kind {
	return t.kind
}

// Description returns the human-readable task label.
func (t *Task) Description() string {
	return t.description
}

// Status returns the current task status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartedAt returns when execution began (zero while pending).
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// EndedAt returns when the task reached a terminal state (zero until then).
func (t *Task) EndedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endedAt
}

// Outcome returns the stored terminal result and error. Callers should
// only consult it after Done is closed; Manager.GetResult wraps this with
// the proper waiting behavior.
func (t *Task) Outcome() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// markRunning flips the task to running. Returns false when the task was
// already moved to a terminal state (e.g. cancelled before start).
func (t *Task) markRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return false
	}
	t.status = StatusRunning
	t.startedAt = time.Now().UTC()
	return true
}

// finish records the terminal outcome and closes the done channel.
// A second finish is a no-op: the first terminal state wins.
func (t *Task) finish(status Status, result any, err error) bool {
	t.mu.Lock()
	if t.status.IsTerminal() {
		t.mu.Unlock()
		return false
	}
	t.status = status
	t.result = result
	t.err = err
	t.endedAt = time.Now().UTC()
	t.mu.Unlock()

	close(t.done)
	return true
}
