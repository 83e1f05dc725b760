package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeTaskFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "HEARTBEAT.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write task file: %v", err)
	}
	return path
}

func TestTrigger_EmptyPendingSkipsWithoutInvokingCallback(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [x] done\n")
	var invoked int32
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			atomic.AddInt32(&invoked, 1)
			return "ignored", nil
		},
	})

	outcome := s.Trigger(context.Background(), ReasonRequested)
	if outcome.Invoked {
		t.Fatal("expected callback not to be invoked")
	}
	if outcome.Skipped != SkipNoPendingTasks {
		t.Fatalf("skip reason = %q, want %q", outcome.Skipped, SkipNoPendingTasks)
	}
	if atomic.LoadInt32(&invoked) != 0 {
		t.Fatal("callback was invoked despite empty pending list")
	}
}

func TestTrigger_ExecReasonRunsEvenWhenEmpty(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [x] done\n")
	var invoked int32
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			atomic.AddInt32(&invoked, 1)
			return "report", nil
		},
	})

	outcome := s.Trigger(context.Background(), ReasonExec)
	if !outcome.Invoked {
		t.Fatal("expected callback to be invoked for exec reason")
	}
	if atomic.LoadInt32(&invoked) != 1 {
		t.Fatalf("invoked = %d, want 1", invoked)
	}
}

func TestTrigger_DuplicateWithinWindowIsSkippedButCallbackRan(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	var invoked int32
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			atomic.AddInt32(&invoked, 1)
			return "same text", nil
		},
	})

	first := s.Trigger(context.Background(), ReasonRequested)
	if !first.Invoked || first.Skipped != SkipNone {
		t.Fatalf("first trigger: %+v", first)
	}

	second := s.Trigger(context.Background(), ReasonRequested)
	if !second.Invoked {
		t.Fatal("expected callback to have run on the duplicate trigger too")
	}
	if second.Skipped != SkipDuplicateMessage {
		t.Fatalf("skip reason = %q, want %q", second.Skipped, SkipDuplicateMessage)
	}
	if atomic.LoadInt32(&invoked) != 2 {
		t.Fatalf("invoked = %d, want 2", invoked)
	}
}

func TestTrigger_DuplicateWithinWindowSkipsDelivery(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	var delivered int32
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			return "same text", nil
		},
		OnDeliver: func(ctx context.Context, text string) error {
			atomic.AddInt32(&delivered, 1)
			return nil
		},
	})

	first := s.Trigger(context.Background(), ReasonRequested)
	if !first.Invoked || first.Skipped != SkipNone {
		t.Fatalf("first trigger: %+v", first)
	}
	second := s.Trigger(context.Background(), ReasonRequested)
	if second.Skipped != SkipDuplicateMessage {
		t.Fatalf("skip reason = %q, want %q", second.Skipped, SkipDuplicateMessage)
	}

	if got := atomic.LoadInt32(&delivered); got != 1 {
		t.Fatalf("delivered = %d, want 1 (duplicate must not be delivered)", got)
	}
}

func TestTrigger_EmptyTextNeverDelivers(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	var delivered int32
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			return "", nil
		},
		OnDeliver: func(ctx context.Context, text string) error {
			atomic.AddInt32(&delivered, 1)
			return nil
		},
	})

	outcome := s.Trigger(context.Background(), ReasonRequested)
	if !outcome.Invoked {
		t.Fatal("expected callback to have run")
	}
	if atomic.LoadInt32(&delivered) != 0 {
		t.Fatal("empty report text must never be delivered")
	}
}

func TestTrigger_DistinctTextIsNotSuppressed(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	n := 0
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			n++
			return "text-" + string(rune('a'+n)), nil
		},
	})

	a := s.Trigger(context.Background(), ReasonRequested)
	b := s.Trigger(context.Background(), ReasonRequested)
	if a.Skipped != SkipNone || b.Skipped != SkipNone {
		t.Fatalf("expected neither to be suppressed: %+v %+v", a, b)
	}
}

func TestRequestNow_NeverRunsInParallel(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	var concurrent, maxConcurrent int32
	release := make(chan struct{})
	s := New(Options{
		TaskFilePath: path,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			n := atomic.AddInt32(&concurrent, 1)
			for {
				cur := atomic.LoadInt32(&maxConcurrent)
				if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&concurrent, -1)
			return "x", nil
		},
	})

	s.RequestNow(ReasonRequested)
	time.Sleep(10 * time.Millisecond)
	s.RequestNow(ReasonRequested) // queued, not parallel
	time.Sleep(10 * time.Millisecond)
	close(release)
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("expected max 1 concurrent invocation, got %d", maxConcurrent)
	}
}

func TestRequestNow_CoalescesWithinWindow(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "- [ ] task\n")
	var invocations int32
	done := make(chan struct{}, 10)
	s := New(Options{
		TaskFilePath:   path,
		CoalesceWindow: 30 * time.Millisecond,
		OnTasks: func(ctx context.Context, tasks []Task, req Request) (string, error) {
			atomic.AddInt32(&invocations, 1)
			done <- struct{}{}
			return "x", nil
		},
	})

	s.RequestNow(ReasonInterval)
	s.RequestNow(ReasonInterval)
	s.RequestNow(ReasonInterval)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coalesced invocation")
	}
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&invocations); got != 1 {
		t.Fatalf("invocations = %d, want 1 (coalesced)", got)
	}
}
