package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRequest(id string, source Source, priority int) *Request {
	return &Request{ID: id, SessionKey: "s", Content: id, Source: source, Priority: priority}
}

func TestDispatch_StrictSerialization(t *testing.T) {
	var active int32
	var maxActive int32
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &Response{Text: req.ID, Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), newTestRequest(fmt.Sprintf("r%d", i), SourceChat, 0))
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&maxActive) != 1 {
		t.Fatalf("expected max 1 concurrent handler invocation, got %d", maxActive)
	}
}

func TestDispatch_PriorityPreemption(t *testing.T) {
	var order []string
	var mu sync.Mutex
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		mu.Lock()
		order = append(order, req.ID)
		mu.Unlock()
		return &Response{Text: req.ID, Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	d.Pause()

	var wg sync.WaitGroup
	results := make(chan string, 3)
	dispatchOne := func(id string, priority int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := d.Dispatch(context.Background(), newTestRequest(id, SourceChat, priority))
			if err != nil {
				t.Errorf("unexpected error for %s: %v", id, err)
				return
			}
			results <- resp.Text
		}()
	}

	dispatchOne("low", 1)
	time.Sleep(5 * time.Millisecond) // ensure enqueue order is deterministic
	dispatchOne("high", 10)
	time.Sleep(5 * time.Millisecond)
	dispatchOne("mid", 5)
	time.Sleep(5 * time.Millisecond)

	d.Resume()
	wg.Wait()
	close(results)

	var got []string
	for r := range results {
		got = append(got, r)
	}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handler invocation order = %v, want %v", got, want)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("invocation order = %v, want %v", order, want)
		}
	}
}

func TestDispatch_FIFOWithinPriority(t *testing.T) {
	var mu sync.Mutex
	var order []string
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		mu.Lock()
		order = append(order, req.ID)
		mu.Unlock()
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	d.Pause()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), newTestRequest(id, SourceChat, 10))
		}(id)
		time.Sleep(5 * time.Millisecond)
	}
	d.Resume()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("FIFO order = %v, want %v", order, want)
		}
	}
}

func TestDispatch_ClearDropsOnlyQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		close(started)
		<-release
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})

	runningDone := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), newTestRequest("running", SourceChat, 0))
		runningDone <- err
	}()
	<-started

	queuedDone := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), newTestRequest("queued", SourceChat, 0))
		queuedDone <- err
	}()
	time.Sleep(10 * time.Millisecond)

	d.Clear()

	select {
	case err := <-queuedDone:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled for queued request, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued request to be cancelled")
	}

	status := d.GetStatus()
	if status.Running != 1 {
		t.Fatalf("expected running=1 after Clear, got %d", status.Running)
	}

	close(release)
	<-runningDone
}

func TestDispatch_ShutdownReportsIdleAndPaused(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	_, _ = d.Dispatch(context.Background(), newTestRequest("r1", SourceChat, 0))

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	status := d.GetStatus()
	if status.Queued != 0 || status.Running != 0 || !status.IsPaused {
		t.Fatalf("unexpected post-shutdown status: %+v", status)
	}

	_, err := d.Dispatch(context.Background(), newTestRequest("r2", SourceChat, 0))
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after shutdown, got %v", err)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		time.Sleep(50 * time.Millisecond)
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	req := newTestRequest("slow", SourceChat, 0)
	req.Timeout = 5 * time.Millisecond

	_, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDispatch_HandlerPanicBecomesError(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		panic("boom")
	}
	d := New(handler, Options{Concurrency: 1})
	_, err := d.Dispatch(context.Background(), newTestRequest("r", SourceChat, 0))
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	var herr *HandlerError
	if !errors.As(err, &herr) {
		t.Fatalf("expected *HandlerError, got %T: %v", err, err)
	}
}

func TestDispatch_OnIdle(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		time.Sleep(10 * time.Millisecond)
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 2})
	go func() { _, _ = d.Dispatch(context.Background(), newTestRequest("a", SourceChat, 0)) }()
	go func() { _, _ = d.Dispatch(context.Background(), newTestRequest("b", SourceChat, 0)) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.OnIdle(ctx); err != nil {
		t.Fatalf("OnIdle: %v", err)
	}
	status := d.GetStatus()
	if status.Queued != 0 || status.Running != 0 {
		t.Fatalf("expected idle status, got %+v", status)
	}
}

func TestPriorityFor(t *testing.T) {
	cases := map[Source]int{
		SourceChat:      10,
		SourceHTTP:      10,
		SourceTerminal:  10,
		SourceCron:      5,
		SourceHeartbeat: 1,
	}
	for src, want := range cases {
		if got := PriorityFor(src); got != want {
			t.Errorf("PriorityFor(%s) = %d, want %d", src, got, want)
		}
	}
}
