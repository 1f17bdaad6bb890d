package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/store"
)

// Scheduler-specific errors.
var (
	// ErrUnknownJobFunc indicates a job references a function name that is
	// not in the registry.
	ErrUnknownJobFunc = errors.New("job function is not registered")

	// ErrJobNotSchedulable indicates an admin operation targeted a job in a
	// state that does not permit it.
	ErrJobNotSchedulable = errors.New("job is not in a schedulable state")

	// ErrSchedulerStopped indicates the scheduler has shut down.
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// Config holds scheduler tuning knobs.
type Config struct {
	// Tick is the polling interval for due jobs.
	Tick time.Duration
}

// DefaultConfig returns scheduler defaults suitable for production.
func DefaultConfig() Config {
	return Config{Tick: 5 * time.Second}
}

// entry is an armed job: the persisted definition plus its computed
// trigger and next fire time.
type entry struct {
	job     *domain.Job
	trigger *Trigger
	next    time.Time
}

// Scheduler fires durable jobs from the relational store. Definitions are
// persisted before they are armed, so a restart followed by LoadJobs
// resumes every non-terminal job.
type Scheduler struct {
	jobs     store.JobStore
	runs     store.JobRunStore
	registry *Registry
	config   Config
	logger   *slog.Logger

	mu       sync.Mutex
	entries  map[uuid.UUID]*entry
	inflight map[uuid.UUID]int
	stopped  bool

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler backed by the given stores and function
// registry. Call Start to begin firing jobs.
func NewScheduler(jobs store.JobStore, runs store.JobRunStore, registry *Registry, config Config, logger *slog.Logger) *Scheduler {
	if config.Tick <= 0 {
		config.Tick = DefaultConfig().Tick
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		jobs:     jobs,
		runs:     runs,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "scheduler"),
		entries:  make(map[uuid.UUID]*entry),
		inflight: make(map[uuid.UUID]int),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// LoadJobs re-arms every non-terminal job from the store. Pending and
// running jobs get a freshly computed next fire time (a job that was
// mid-flight when the process died is treated as never having fired);
// paused jobs stay dormant until resumed. Date jobs whose fire time has
// passed fire on the next tick.
func (s *Scheduler) LoadJobs(ctx context.Context) error {
	active, err := s.jobs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}

	now := time.Now().UTC()
	armed := 0
	for _, job := range active {
		if job.Status == domain.JobStatusPaused {
			continue
		}

		if _, ok := s.registry.Resolve(job.FuncName); !ok {
			s.logger.Warn("skipping job with unregistered function",
				"job_id", job.ID, "func", job.FuncName)
			continue
		}

		trigger, err := NewTrigger(job.TriggerType, job.TriggerArgs)
		if err != nil {
			s.logger.Warn("skipping job with invalid trigger",
				"job_id", job.ID, "error", err)
			continue
		}

		next := trigger.First(now)
		if job.TriggerType == domain.TriggerDate && next.Before(now) {
			// Missed while the process was down; fire immediately.
			next = now
		}

		if job.Status == domain.JobStatusRunning {
			if err := job.UpdateStatus(domain.JobStatusPending); err != nil {
				return err
			}
		}
		job.NextRunTime = &next
		if err := s.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("update job %s: %w", job.ID, err)
		}

		s.arm(job, trigger, next)
		armed++
	}

	s.logger.Info("jobs loaded", "armed", armed, "total_active", len(active))
	return nil
}

// Start launches the tick loop. It returns immediately; firing happens on
// background goroutines until Stop is called.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts the tick loop and waits for in-flight firings to finish or
// for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// AddJob persists and arms a new job. The job's function name must be
// registered and its trigger must be valid; the job is saved with its
// first fire time before it is armed, so a crash between save and arm
// only delays the first firing until the next LoadJobs.
func (s *Scheduler) AddJob(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if _, ok := s.registry.Resolve(job.FuncName); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJobFunc, job.FuncName)
	}

	trigger, err := NewTrigger(job.TriggerType, job.TriggerArgs)
	if err != nil {
		return err
	}

	next := trigger.First(time.Now().UTC())
	job.NextRunTime = &next

	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	s.armLocked(job, trigger, next)

	s.logger.Info("job added",
		"job_id", job.ID, "name", job.Name,
		"trigger", trigger.String(), "next_run", next)
	return nil
}

// RemoveJob disarms a job and marks its definition completed. The
// execution log is kept.
func (s *Scheduler) RemoveJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.disarm(id)

	if job.IsTerminal() {
		return nil
	}
	if err := job.UpdateStatus(domain.JobStatusCompleted); err != nil {
		return err
	}
	job.NextRunTime = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	s.logger.Info("job removed", "job_id", id)
	return nil
}

// PauseJob disarms a job without forgetting it. Paused is not terminal:
// ResumeJob re-arms the persisted definition.
func (s *Scheduler) PauseJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: status %s", ErrJobNotSchedulable, job.Status)
	}

	s.disarm(id)

	if err := job.UpdateStatus(domain.JobStatusPaused); err != nil {
		return err
	}
	job.NextRunTime = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	s.logger.Info("job paused", "job_id", id)
	return nil
}

// ResumeJob re-arms a paused or fail-stopped job with a freshly computed
// next fire time. Resuming is the operator path out of the fail-stop
// state a failed firing leaves a recurring job in.
func (s *Scheduler) ResumeJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPaused && job.Status != domain.JobStatusFailed {
		return fmt.Errorf("%w: status %s", ErrJobNotSchedulable, job.Status)
	}

	trigger, err := NewTrigger(job.TriggerType, job.TriggerArgs)
	if err != nil {
		return err
	}

	next := trigger.First(time.Now().UTC())
	if err := job.UpdateStatus(domain.JobStatusPending); err != nil {
		return err
	}
	job.NextRunTime = &next
	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	s.arm(job, trigger, next)

	s.logger.Info("job resumed", "job_id", id, "next_run", next)
	return nil
}

// TriggerJob fires a job immediately, outside its schedule. The firing is
// logged like any other but the job's next fire time is untouched.
func (s *Scheduler) TriggerJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: status %s", ErrJobNotSchedulable, job.Status)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.fire(job, false)
	}()
	return nil
}

// GetJob returns a job definition by ID.
func (s *Scheduler) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns all job definitions.
func (s *Scheduler) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.jobs.List(ctx)
}

// ListRuns returns the execution log of one job, most recent first.
func (s *Scheduler) ListRuns(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.JobRun, error) {
	return s.runs.ListByJob(ctx, jobID, limit)
}

func (s *Scheduler) arm(job *domain.Job, trigger *Trigger, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(job, trigger, next)
}

func (s *Scheduler) armLocked(job *domain.Job, trigger *Trigger, next time.Time) {
	s.entries[job.ID] = &entry{job: job, trigger: trigger, next: next}
	jobsRegistered.Set(float64(len(s.entries)))
}

func (s *Scheduler) disarm(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	jobsRegistered.Set(float64(len(s.entries)))
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.tick(now.UTC())
		}
	}
}

// tick collects due entries, advances recurring ones to their next fire
// time, and launches a firing goroutine per due job.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for id, e := range s.entries {
		if e.next.After(now) {
			continue
		}

		if s.inflight[e.job.ID] >= e.job.MaxInstances {
			jobsFired.WithLabelValues("skipped").Inc()
			s.logger.Warn("skipping firing, max instances reached",
				"job_id", e.job.ID, "name", e.job.Name,
				"max_instances", e.job.MaxInstances)
			if next, ok := e.trigger.Next(now); ok {
				e.next = next
			} else {
				delete(s.entries, id)
			}
			continue
		}

		due = append(due, e)
		if next, ok := e.trigger.Next(now); ok {
			e.next = next
		} else {
			delete(s.entries, id)
		}
		s.inflight[e.job.ID]++
	}
	jobsRegistered.Set(float64(len(s.entries)))

	for _, e := range due {
		// Each firing works on its own copy so concurrent firings of the
		// same job never mutate the shared armed entry.
		job := *e.job
		s.wg.Add(1)
		go func(job *domain.Job) {
			defer s.wg.Done()
			defer s.release(job.ID)
			s.fire(job, true)
		}(&job)
	}
	s.mu.Unlock()
}

func (s *Scheduler) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id]--
	if s.inflight[id] <= 0 {
		delete(s.inflight, id)
	}
}

// fire executes one firing of the job: it records a run entry, invokes
// the registered function, finalizes the run, and applies the job's
// post-firing status transition. scheduled is false for manual triggers,
// which never alter the job's schedule or status.
func (s *Scheduler) fire(job *domain.Job, scheduled bool) {
	ctx := context.Background()
	log := s.logger.With("job_id", job.ID, "name", job.Name)

	fn, ok := s.registry.Resolve(job.FuncName)
	if !ok {
		// The registry changed underneath a persisted job.
		log.Error("job function vanished from registry", "func", job.FuncName)
		if scheduled {
			s.failJob(ctx, job, log)
		}
		return
	}

	run := domain.NewJobRun(job.ID)
	if err := s.runs.Create(ctx, run); err != nil {
		log.Error("failed to create run entry", "error", err)
		return
	}

	if scheduled && !job.IsTerminal() {
		if err := job.UpdateStatus(domain.JobStatusRunning); err == nil {
			if err := s.jobs.Update(ctx, job); err != nil {
				log.Warn("failed to mark job running", "error", err)
			}
		}
	}

	start := time.Now()
	result, err := s.invoke(ctx, fn, job.FuncArgs)
	firingDuration.Observe(time.Since(start).Seconds())

	run.Finish(result, err)
	if ferr := s.runs.Finish(ctx, run); ferr != nil {
		log.Error("failed to finalize run entry", "run_id", run.ID, "error", ferr)
	}

	if err != nil {
		jobsFired.WithLabelValues("failed").Inc()
		log.Error("job firing failed", "run_id", run.ID, "error", err)
		if scheduled {
			s.failJob(ctx, job, log)
		}
		return
	}

	jobsFired.WithLabelValues("success").Inc()
	log.Info("job fired", "run_id", run.ID, "duration", time.Since(start))

	if !scheduled {
		return
	}

	switch job.TriggerType {
	case domain.TriggerDate:
		if err := job.UpdateStatus(domain.JobStatusCompleted); err == nil {
			job.NextRunTime = nil
			if err := s.jobs.Update(ctx, job); err != nil {
				log.Warn("failed to complete one-off job", "error", err)
			}
		}
	default:
		s.mu.Lock()
		var next *time.Time
		if e := s.entries[job.ID]; e != nil {
			n := e.next
			next = &n
		}
		s.mu.Unlock()
		if err := job.UpdateStatus(domain.JobStatusPending); err == nil {
			if next != nil {
				job.NextRunTime = next
			}
			if err := s.jobs.Update(ctx, job); err != nil {
				log.Warn("failed to re-arm recurring job", "error", err)
			}
		}
	}
}

// failJob applies the fail-stop policy: the job is disarmed and marked
// failed, recurring or not, until an operator intervenes.
func (s *Scheduler) failJob(ctx context.Context, job *domain.Job, log *slog.Logger) {
	s.disarm(job.ID)

	if err := job.UpdateStatus(domain.JobStatusFailed); err != nil {
		return
	}
	job.NextRunTime = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		log.Error("failed to mark job failed", "error", err)
	}
}

// invoke runs the job function, converting panics into errors so one bad
// job cannot take the scheduler down.
func (s *Scheduler) invoke(ctx context.Context, fn JobFunc, args []byte) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}
