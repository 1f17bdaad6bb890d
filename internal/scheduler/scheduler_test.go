package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/store"
)

// fakeJobStore is an in-memory store.JobStore for scheduler tests.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (s *fakeJobStore) Save(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get job: %w", store.ErrJobNotFound)
	}
	return job, nil
}

func (s *fakeJobStore) Update(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("update job: %w", store.ErrJobNotFound)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *fakeJobStore) ListActive(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*domain.Job
	for _, job := range s.jobs {
		if !job.IsTerminal() {
			active = append(active, job)
		}
	}
	return active, nil
}

func (s *fakeJobStore) List(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	return all, nil
}

func (s *fakeJobStore) WithTx(tx *sql.Tx) store.JobStore { return s }

func (s *fakeJobStore) status(id uuid.UUID) domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

// fakeJobRunStore is an in-memory store.JobRunStore.
type fakeJobRunStore struct {
	mu   sync.Mutex
	runs []*domain.JobRun
}

func newFakeJobRunStore() *fakeJobRunStore {
	return &fakeJobRunStore{}
}

func (s *fakeJobRunStore) Create(ctx context.Context, run *domain.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeJobRunStore) Finish(ctx context.Context, run *domain.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	return errors.New("run not found")
}

func (s *fakeJobRunStore) ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobRun
	for _, r := range s.runs {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeJobRunStore) WithTx(tx *sql.Tx) store.JobRunStore { return s }

func (s *fakeJobRunStore) byJob(jobID uuid.UUID) []*domain.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.JobRun
	for _, r := range s.runs {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

type schedulerFixture struct {
	scheduler *Scheduler
	jobs      *fakeJobStore
	runs      *fakeJobRunStore
	registry  *Registry
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	jobs := newFakeJobStore()
	runs := newFakeJobRunStore()
	registry := NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &schedulerFixture{
		scheduler: NewScheduler(jobs, runs, registry, Config{Tick: time.Second}, logger),
		jobs:      jobs,
		runs:      runs,
		registry:  registry,
	}
}

func intervalJob(t *testing.T, name string, seconds int, funcName string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(name, domain.TriggerInterval,
		domain.TriggerArgs{Seconds: seconds}, funcName, nil)
	require.NoError(t, err)
	return job
}

func dateJob(t *testing.T, name string, runAt time.Time, funcName string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(name, domain.TriggerDate,
		domain.TriggerArgs{RunAt: &runAt}, funcName, nil)
	require.NoError(t, err)
	return job
}

func TestSchedulerAddJob(t *testing.T) {
	t.Parallel()

	t.Run("rejects unregistered functions", func(t *testing.T) {
		t.Parallel()
		f := newSchedulerFixture(t)

		err := f.scheduler.AddJob(context.Background(), intervalJob(t, "orphan", 60, "nobody"))
		assert.ErrorIs(t, err, ErrUnknownJobFunc)
	})

	t.Run("rejects invalid job definitions", func(t *testing.T) {
		t.Parallel()
		f := newSchedulerFixture(t)
		require.NoError(t, f.registry.Register("fn", noopJobFunc))

		job := intervalJob(t, "bad", 60, "fn")
		job.Name = ""
		assert.ErrorIs(t, f.scheduler.AddJob(context.Background(), job), domain.ErrJobNameEmpty)
	})

	t.Run("persists with the first fire time", func(t *testing.T) {
		t.Parallel()
		f := newSchedulerFixture(t)
		require.NoError(t, f.registry.Register("fn", noopJobFunc))

		job := intervalJob(t, "heartbeat", 60, "fn")
		require.NoError(t, f.scheduler.AddJob(context.Background(), job))

		saved, err := f.jobs.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		require.NotNil(t, saved.NextRunTime)
		assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), *saved.NextRunTime, 5*time.Second)
	})
}

func TestSchedulerDateJobFiresOnce(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, f.registry.Register("once", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "done", nil
	}))

	job := dateJob(t, "one-off", time.Now().UTC().Add(-time.Minute), "once")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	f.scheduler.tick(time.Now().UTC())
	f.scheduler.wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	assert.Equal(t, domain.JobStatusCompleted, f.jobs.status(job.ID))
	assert.Nil(t, f.jobs.jobs[job.ID].NextRunTime)

	runs := f.runs.byJob(job.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.JobRunStatusSuccess, runs[0].Status)
	assert.Equal(t, "done", runs[0].Result)

	// A later tick must not fire the completed job again.
	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestSchedulerFailStop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, f.registry.Register("flaky", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "", errors.New("upstream unavailable")
	}))

	job := intervalJob(t, "sync", 1, "flaky")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	f.scheduler.tick(time.Now().UTC().Add(2 * time.Second))
	f.scheduler.wg.Wait()

	assert.Equal(t, domain.JobStatusFailed, f.jobs.status(job.ID))

	runs := f.runs.byJob(job.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.JobRunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "upstream unavailable")

	// Recurring jobs do not re-fire after a failure.
	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestSchedulerPanicIsFailure(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	require.NoError(t, f.registry.Register("panics", func(ctx context.Context, args json.RawMessage) (string, error) {
		panic("boom")
	}))

	job := dateJob(t, "doomed", time.Now().UTC().Add(-time.Second), "panics")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	f.scheduler.tick(time.Now().UTC())
	f.scheduler.wg.Wait()

	assert.Equal(t, domain.JobStatusFailed, f.jobs.status(job.ID))
	runs := f.runs.byJob(job.ID)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "boom")
}

func TestSchedulerMaxInstances(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	require.NoError(t, f.registry.Register("slow", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return "", nil
	}))

	job := intervalJob(t, "importer", 1, "slow")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	now := time.Now().UTC()
	f.scheduler.tick(now.Add(2 * time.Second))

	// The previous firing is still in flight, so this one is skipped.
	f.scheduler.tick(now.Add(4 * time.Second))

	close(release)
	f.scheduler.wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestSchedulerPauseResume(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, f.registry.Register("fn", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "", nil
	}))

	job := intervalJob(t, "reaper", 1, "fn")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))
	require.NoError(t, f.scheduler.PauseJob(context.Background(), job.ID))

	assert.Equal(t, domain.JobStatusPaused, f.jobs.status(job.ID))

	// Paused jobs never fire, however late the tick.
	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()
	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()

	require.NoError(t, f.scheduler.ResumeJob(context.Background(), job.ID))
	assert.Equal(t, domain.JobStatusPending, f.jobs.status(job.ID))

	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	t.Run("resume rejects a schedulable job", func(t *testing.T) {
		err := f.scheduler.ResumeJob(context.Background(), job.ID)
		assert.ErrorIs(t, err, ErrJobNotSchedulable)
	})
}

func TestSchedulerResumeAfterFailStop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	failFirst := true
	require.NoError(t, f.registry.Register("flaky", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if failFirst {
			failFirst = false
			return "", errors.New("upstream unavailable")
		}
		return "recovered", nil
	}))

	job := intervalJob(t, "sync", 1, "flaky")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	f.scheduler.tick(time.Now().UTC().Add(2 * time.Second))
	f.scheduler.wg.Wait()
	require.Equal(t, domain.JobStatusFailed, f.jobs.status(job.ID))

	// Resuming is the operator path out of the fail-stop state.
	require.NoError(t, f.scheduler.ResumeJob(context.Background(), job.ID))
	assert.Equal(t, domain.JobStatusPending, f.jobs.status(job.ID))
	require.NotNil(t, f.jobs.jobs[job.ID].NextRunTime)

	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()

	assert.Equal(t, domain.JobStatusPending, f.jobs.status(job.ID))
	runs := f.runs.byJob(job.ID)
	require.Len(t, runs, 2)

	t.Run("completed jobs stay unresumable", func(t *testing.T) {
		done := dateJob(t, "finished", time.Now().UTC(), "flaky")
		done.Status = domain.JobStatusCompleted
		require.NoError(t, f.jobs.Save(context.Background(), done))

		err := f.scheduler.ResumeJob(context.Background(), done.ID)
		assert.ErrorIs(t, err, ErrJobNotSchedulable)
	})
}

func TestSchedulerConcurrentFirings(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	require.NoError(t, f.registry.Register("slow", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return "", nil
	}))

	job := intervalJob(t, "fanout", 1, "slow")
	job.MaxInstances = 2
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))

	now := time.Now().UTC()
	f.scheduler.tick(now.Add(2 * time.Second))
	f.scheduler.tick(now.Add(4 * time.Second))

	// Both firings are in flight; each works on its own copy, so the armed
	// definition stays untouched.
	f.scheduler.mu.Lock()
	armed := f.scheduler.entries[job.ID]
	require.NotNil(t, armed)
	assert.Equal(t, domain.JobStatusPending, armed.job.Status)
	f.scheduler.mu.Unlock()

	close(release)
	f.scheduler.wg.Wait()

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
	require.Len(t, f.runs.byJob(job.ID), 2)
	assert.Equal(t, domain.JobStatusPending, f.jobs.status(job.ID))
}

func TestSchedulerRemoveJob(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	require.NoError(t, f.registry.Register("fn", noopJobFunc))

	job := intervalJob(t, "cleanup", 1, "fn")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))
	require.NoError(t, f.scheduler.RemoveJob(context.Background(), job.ID))

	assert.Equal(t, domain.JobStatusCompleted, f.jobs.status(job.ID))

	f.scheduler.tick(time.Now().UTC().Add(time.Hour))
	f.scheduler.wg.Wait()
	assert.Empty(t, f.runs.byJob(job.ID))

	t.Run("unknown job", func(t *testing.T) {
		err := f.scheduler.RemoveJob(context.Background(), uuid.New())
		assert.True(t, store.IsNotFoundError(err))
	})
}

func TestSchedulerTriggerJob(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, f.registry.Register("fn", func(ctx context.Context, args json.RawMessage) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "manual", nil
	}))

	job := intervalJob(t, "exporter", 3600, "fn")
	require.NoError(t, f.scheduler.AddJob(context.Background(), job))
	before := *f.jobs.jobs[job.ID].NextRunTime

	require.NoError(t, f.scheduler.TriggerJob(context.Background(), job.ID))
	f.scheduler.wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	// A manual firing is logged but leaves the schedule untouched.
	runs := f.runs.byJob(job.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.JobRunStatusSuccess, runs[0].Status)
	assert.Equal(t, domain.JobStatusPending, f.jobs.status(job.ID))
	assert.Equal(t, before, *f.jobs.jobs[job.ID].NextRunTime)

	t.Run("terminal jobs cannot be triggered", func(t *testing.T) {
		done := dateJob(t, "finished", time.Now().UTC(), "fn")
		done.Status = domain.JobStatusCompleted
		require.NoError(t, f.jobs.Save(context.Background(), done))

		err := f.scheduler.TriggerJob(context.Background(), done.ID)
		assert.ErrorIs(t, err, ErrJobNotSchedulable)
	})
}

func TestSchedulerLoadJobs(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)

	var mu sync.Mutex
	fired := make(map[string]int)
	record := func(name string) JobFunc {
		return func(ctx context.Context, args json.RawMessage) (string, error) {
			mu.Lock()
			fired[name]++
			mu.Unlock()
			return "", nil
		}
	}
	require.NoError(t, f.registry.Register("reap", record("reap")))
	require.NoError(t, f.registry.Register("report", record("report")))

	ctx := context.Background()

	pending := intervalJob(t, "pending-reap", 10, "reap")
	require.NoError(t, f.jobs.Save(ctx, pending))

	// Killed mid-flight on a previous run; treated as never having fired.
	stuck := intervalJob(t, "stuck-report", 10, "report")
	require.NoError(t, stuck.UpdateStatus(domain.JobStatusRunning))
	require.NoError(t, f.jobs.Save(ctx, stuck))

	paused := intervalJob(t, "paused", 10, "reap")
	require.NoError(t, paused.UpdateStatus(domain.JobStatusPaused))
	require.NoError(t, f.jobs.Save(ctx, paused))

	orphan := intervalJob(t, "orphan", 10, "gone")
	require.NoError(t, f.jobs.Save(ctx, orphan))

	missed := dateJob(t, "missed", time.Now().UTC().Add(-time.Hour), "report")
	require.NoError(t, f.jobs.Save(ctx, missed))

	require.NoError(t, f.scheduler.LoadJobs(ctx))

	assert.Equal(t, domain.JobStatusPending, f.jobs.status(stuck.ID))

	f.scheduler.tick(time.Now().UTC().Add(time.Minute))
	f.scheduler.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired["reap"], "pending interval job fires, paused does not")
	assert.Equal(t, 2, fired["report"], "reset running job and missed date job both fire")
	assert.Empty(t, f.runs.byJob(paused.ID))
	assert.Empty(t, f.runs.byJob(orphan.ID))
}

func TestSchedulerStop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	f.scheduler.Start()

	require.NoError(t, f.scheduler.Stop(context.Background()))

	// Stopping twice is harmless.
	require.NoError(t, f.scheduler.Stop(context.Background()))

	require.NoError(t, f.registry.Register("fn", noopJobFunc))
	err := f.scheduler.AddJob(context.Background(), intervalJob(t, "late", 10, "fn"))
	assert.ErrorIs(t, err, ErrSchedulerStopped)
}
