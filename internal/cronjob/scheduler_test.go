package cronjob

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestScheduler_AddJob_EveryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	job, err := s.AddJob(JobInput{
		Name:        "poll",
		Instruction: "poll the feed",
		Schedule:    Schedule{Kind: ScheduleEvery, EveryMS: 60_000},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if job.NextRunAtMS == 0 {
		t.Fatal("expected next-run to be computed")
	}

	s2 := New(path)
	if err := s2.Initialize(); err != nil {
		t.Fatalf("initialize second instance: %v", err)
	}
	defer s2.Shutdown()

	jobs := s2.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].Name != "poll" {
		t.Fatalf("reloaded jobs: %+v", jobs)
	}
}

func TestScheduler_AtJob_DisablesAfterFiring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	fired := make(chan Job, 1)
	s.SetCallback(func(ctx context.Context, job Job) error {
		fired <- job
		return nil
	})
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	job, err := s.AddJob(JobInput{
		Name:        "one-shot",
		Instruction: "send reminder",
		Schedule:    Schedule{Kind: ScheduleAt, AtMS: time.Now().Add(30 * time.Millisecond).UnixMilli()},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	select {
	case got := <-fired:
		if got.ID != job.ID {
			t.Fatalf("fired job id = %s, want %s", got.ID, job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to fire")
	}

	time.Sleep(20 * time.Millisecond) // allow post-fire persistence to land
	stored, ok := s.GetJob(job.ID)
	if !ok {
		t.Fatal("job missing after fire")
	}
	if stored.Enabled {
		t.Fatal("expected at-job to disable after firing")
	}
	if stored.NextRunAtMS != 0 {
		t.Fatalf("expected next-run to be cleared, got %d", stored.NextRunAtMS)
	}
	if stored.LastRunAtMS == 0 {
		t.Fatal("expected last-run to be set")
	}
}

func TestScheduler_EveryJob_ReschedulesFromFireTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	var mu sync.Mutex
	var fireCount int
	s.SetCallback(func(ctx context.Context, job Job) error {
		mu.Lock()
		fireCount++
		mu.Unlock()
		return nil
	})
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	_, err := s.AddJob(JobInput{
		Name:        "tick",
		Instruction: "tick",
		Schedule:    Schedule{Kind: ScheduleEvery, EveryMS: 20},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fireCount
		mu.Unlock()
		if n >= 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected job to fire repeatedly")
}

func TestScheduler_UpdateJob_RecomputesNextRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	job, err := s.AddJob(JobInput{
		Name:        "poll",
		Instruction: "poll the feed",
		Schedule:    Schedule{Kind: ScheduleEvery, EveryMS: 60_000},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	job.Instruction = "poll the other feed"
	job.Schedule = Schedule{Kind: ScheduleEvery, EveryMS: 5_000}
	if err := s.UpdateJob(job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	stored, ok := s.GetJob(job.ID)
	if !ok {
		t.Fatal("job missing after update")
	}
	if stored.Instruction != "poll the other feed" {
		t.Fatalf("instruction = %q, want %q", stored.Instruction, "poll the other feed")
	}
	if stored.Schedule.EveryMS != 5_000 {
		t.Fatalf("every = %d, want 5000", stored.Schedule.EveryMS)
	}
	if stored.NextRunAtMS == 0 {
		t.Fatal("expected next-run to be recomputed")
	}
}

func TestScheduler_UpdateJob_UnknownIDErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	err := s.UpdateJob(Job{ID: "does-not-exist", Schedule: Schedule{Kind: ScheduleEvery, EveryMS: 1000}})
	if err == nil {
		t.Fatal("expected error for unknown job id")
	}
}

func TestScheduler_RunJob_IsFireAndForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	release := make(chan struct{})
	started := make(chan struct{})
	s.SetCallback(func(ctx context.Context, job Job) error {
		close(started)
		<-release
		return nil
	})
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	job, err := s.AddJob(JobInput{
		Name:        "manual",
		Instruction: "run me",
		Schedule:    Schedule{Kind: ScheduleEvery, EveryMS: 3600_000},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.RunJob(job.ID) }()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("RunJob returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunJob should return before the callback completes")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("callback never started")
	}
	close(release)
	s.Shutdown()
}

func TestScheduler_CallbackErrorGoesToOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := New(path)

	boom := errors.New("boom")
	errCh := make(chan error, 1)
	s.SetCallback(func(ctx context.Context, job Job) error { return boom })
	s.SetErrorHandler(func(jobID string, err error) { errCh <- err })

	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer s.Shutdown()

	job, err := s.AddJob(JobInput{
		Name:        "failer",
		Instruction: "fail",
		Schedule:    Schedule{Kind: ScheduleAt, AtMS: time.Now().Add(10 * time.Millisecond).UnixMilli()},
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	_ = job

	select {
	case err := <-errCh:
		if !errors.Is(err, boom) {
			t.Fatalf("onError received %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("onError never called")
	}
}
