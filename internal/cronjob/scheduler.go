// Package cronjob implements the Cron Scheduler: a persistent, timer-driven
// engine for absolute/interval/expression-scheduled jobs. Exactly one timer
// is ever outstanding, always aimed at the earliest next-run across enabled
// jobs.
package cronjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deca-sh/gateway/internal/pkg/logs"
)

// Callback is invoked when a job fires. Timer-triggered fires are awaited
// by the scheduler loop; RunJob fires are fire-and-forget.
type Callback func(ctx context.Context, job Job) error

// Status is an instantaneous snapshot of scheduler occupancy.
type Status struct {
	JobCount    int
	NextJobID   string
	NextRunAtMS int64
	HasNext     bool
}

// Scheduler manages the job map and the single outstanding timer.
type Scheduler struct {
	store    *Store
	callback Callback
	onError  func(jobID string, err error)

	mu      sync.Mutex
	timer   *time.Timer
	started bool
	closed  bool

	wg sync.WaitGroup
}

// New constructs a Scheduler backed by storePath. SetCallback must be
// called before Initialize for fired jobs to do anything useful.
func New(storePath string) *Scheduler {
	return &Scheduler{store: NewStore(storePath)}
}

// SetCallback registers the function invoked when a job fires.
func (s *Scheduler) SetCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// SetErrorHandler registers a hook for callback errors; callback failures
// are always caught here and never propagate into the timer loop.
func (s *Scheduler) SetErrorHandler(fn func(jobID string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Initialize loads the persistence file (a missing file is an empty job
// set) and arms the timer for the earliest next run.
func (s *Scheduler) Initialize() error {
	if err := s.store.Load(); err != nil {
		return fmt.Errorf("cronjob: load store: %w", err)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.rearm()
	return nil
}

// AddJob assigns an id and creation time, computes the initial next-run,
// persists, and rearms the timer.
func (s *Scheduler) AddJob(input JobInput) (Job, error) {
	nextMS, err := calcNextRunMS(input.Schedule, time.Now().UnixMilli())
	if err != nil {
		return Job{}, fmt.Errorf("cronjob: %w", err)
	}

	job := Job{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Instruction: input.Instruction,
		Schedule:    input.Schedule,
		Enabled:     input.Enabled,
		CreatedAt:   time.Now(),
		NextRunAtMS: nextMS,
	}

	if err := s.store.Add(job); err != nil {
		return Job{}, err
	}
	if err := s.store.Save(); err != nil {
		return Job{}, fmt.Errorf("cronjob: persist job: %w", err)
	}
	s.rearm()
	return job, nil
}

// UpdateJob replaces a job's fields, recomputes its next-run time from the
// (possibly changed) schedule, persists, and rearms the timer.
func (s *Scheduler) UpdateJob(job Job) error {
	if _, ok := s.store.Get(job.ID); !ok {
		return fmt.Errorf("cronjob: job not found: %s", job.ID)
	}

	nextMS, err := calcNextRunMS(job.Schedule, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("cronjob: %w", err)
	}
	job.NextRunAtMS = nextMS

	s.store.Update(job)
	if err := s.store.Save(); err != nil {
		return fmt.Errorf("cronjob: persist updated job: %w", err)
	}
	s.rearm()
	return nil
}

// RemoveJob deletes a job by id, persists, and rearms the timer.
func (s *Scheduler) RemoveJob(id string) error {
	s.store.Remove(id)
	if err := s.store.Save(); err != nil {
		return fmt.Errorf("cronjob: persist after remove: %w", err)
	}
	s.rearm()
	return nil
}

// RunJob fires a job immediately without awaiting its callback, so a
// callback that itself enqueues work on the same serialized lane cannot
// self-deadlock against the caller.
func (s *Scheduler) RunJob(id string) error {
	job, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("cronjob: job not found: %s", id)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(context.Background(), job)
	}()
	return nil
}

// ListJobs returns every registered job.
func (s *Scheduler) ListJobs() []Job {
	return s.store.List()
}

// GetJob returns a single job by id.
func (s *Scheduler) GetJob(id string) (Job, bool) {
	return s.store.Get(id)
}

// GetStatus reports job count and the earliest pending run.
func (s *Scheduler) GetStatus() Status {
	id, ms, ok := s.store.EarliestNextRun()
	return Status{
		JobCount:    len(s.store.List()),
		NextJobID:   id,
		NextRunAtMS: ms,
		HasNext:     ok,
	}
}

// Shutdown stops the timer. No persistence write happens here; every
// mutating operation already persists eagerly.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// rearm stops any outstanding timer and schedules a new one aimed at the
// earliest next-run across enabled jobs, if any.
func (s *Scheduler) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	_, nextMS, ok := s.store.EarliestNextRun()
	if !ok {
		return
	}
	delay := time.Until(time.UnixMilli(nextMS))
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.onTimer)
}

// onTimer fires every job that is now due, then rearms for the next one.
// A single timer tick can legitimately cover more than one job if their
// next-run times coincide or the process was asleep past several of them.
func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	now := time.Now().UnixMilli()
	for {
		id, nextMS, ok := s.store.EarliestNextRun()
		if !ok || nextMS > now {
			break
		}
		job, ok := s.store.Get(id)
		if !ok {
			break
		}
		s.fire(context.Background(), job)
	}
	s.rearm()
}

// fire updates run-state, persists, and invokes the callback. The timer
// loop calls this synchronously (an awaited fire); RunJob calls it from
// its own goroutine (a fire-and-forget fire from the caller's view).
func (s *Scheduler) fire(ctx context.Context, job Job) {
	now := time.Now()
	job.LastRunAtMS = now.UnixMilli()

	nextMS, err := calcNextRunMS(job.Schedule, now.UnixMilli())
	if err != nil {
		logs.Warn("[cronjob] job %s reschedule failed: %v, disabling", job.ID, err)
		job.Enabled = false
		job.NextRunAtMS = 0
	} else {
		job.NextRunAtMS = nextMS
		if job.Schedule.Kind == ScheduleAt {
			job.Enabled = false
		}
	}
	s.store.Update(job)
	if err := s.store.Save(); err != nil {
		logs.Warn("[cronjob] persist job %s: %v", job.ID, err)
	}

	s.mu.Lock()
	cb := s.callback
	onError := s.onError
	s.mu.Unlock()

	if cb == nil {
		logs.Warn("[cronjob] job %s fired with no callback registered", job.ID)
		return
	}

	if err := cb(ctx, job); err != nil {
		if onError != nil {
			onError(job.ID, err)
		} else {
			logs.Warn("[cronjob] job %s callback error: %v", job.ID, err)
		}
	}
}
