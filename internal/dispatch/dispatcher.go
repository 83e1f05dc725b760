// Package dispatch implements the Dispatch Core: a priority-ordered,
// bounded-concurrency work queue that serializes calls into a single
// handler (the LLM agent) on behalf of many heterogeneous callers.
package dispatch

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deca-sh/gateway/internal/pkg/logs"
)

// Options configures a Dispatcher at construction time.
type Options struct {
	// Concurrency is the maximum number of simultaneous handler
	// invocations. Values <= 0 are clamped to 1 (strict serialization).
	Concurrency int
	Hooks       EventHooks
}

// Dispatcher serializes calls into Handler, honoring per-request priority
// and a concurrency ceiling, and exposes pause/resume/clear/idle lifecycle
// controls. The zero value is not usable; construct with New.
type Dispatcher struct {
	handler     Handler
	concurrency int
	hooks       EventHooks

	mu      sync.Mutex
	cond    *sync.Cond
	pq      priorityQueue
	running int
	paused  bool
	closed  bool
	seq     uint64

	wg sync.WaitGroup

}

// New constructs a Dispatcher bound to handler.
func New(handler Handler, opts Options) *Dispatcher {
	if handler == nil {
		panic("dispatch: handler cannot be nil")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	d := &Dispatcher{
		handler:     handler,
		concurrency: concurrency,
		hooks:       opts.Hooks,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

// Dispatch enqueues req and blocks until the handler has produced a result,
// the request is cancelled by Clear, or its per-request timeout elapses.
// It is safe to call concurrently from many goroutines.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrShutdown
	}
	d.seq++
	req.seq = d.seq
	req.enqueuedAt = time.Now()

	resultCh := make(chan outcome, 1)
	item := &queueItem{req: req, result: resultCh}
	heap.Push(&d.pq, item)
	metricQueued.Set(float64(d.pq.Len()))
	d.mu.Unlock()

	if d.hooks.OnEnqueue != nil {
		d.hooks.OnEnqueue(req)
	}
	d.cond.Broadcast()

	var timeoutTimer *time.Timer
	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timeoutTimer = time.NewTimer(req.Timeout)
		defer timeoutTimer.Stop()
		timeoutCh = timeoutTimer.C
	}

	select {
	case res := <-resultCh:
		return res.resp, res.err
	case <-timeoutCh:
		d.failTimeout(item)
		res := <-resultCh
		return res.resp, res.err
	case <-ctx.Done():
		d.cancelItem(item, ctx.Err())
		res := <-resultCh
		return res.resp, res.err
	}
}

// failTimeout marks item as timed out for the caller. If the item already
// started executing, the handler keeps running in the background (the
// agent is treated as non-interruptible) but the caller is released.
func (d *Dispatcher) failTimeout(item *queueItem) {
	d.mu.Lock()
	alreadyDone := item.canceled
	item.canceled = true
	stillQueued := item.index >= 0
	if stillQueued {
		heap.Remove(&d.pq, item.index)
		metricQueued.Set(float64(d.pq.Len()))
	}
	d.mu.Unlock()

	if alreadyDone {
		return
	}
	err := ErrTimeout
	if d.hooks.OnError != nil {
		d.hooks.OnError(item.req, err)
	}
	select {
	case item.result <- outcome{nil, err}:
	default:
	}
}

// cancelItem handles caller-side context cancellation distinct from Clear.
func (d *Dispatcher) cancelItem(item *queueItem, cause error) {
	d.mu.Lock()
	alreadyDone := item.canceled
	item.canceled = true
	stillQueued := item.index >= 0
	if stillQueued {
		heap.Remove(&d.pq, item.index)
		metricQueued.Set(float64(d.pq.Len()))
	}
	d.mu.Unlock()

	if alreadyDone {
		return
	}
	err := fmt.Errorf("dispatch: caller context done: %w", cause)
	if d.hooks.OnError != nil {
		d.hooks.OnError(item.req, err)
	}
	select {
	case item.result <- outcome{nil, err}:
	default:
	}
}

// loop is the single background goroutine that drains the queue.
func (d *Dispatcher) loop() {
	for {
		d.mu.Lock()
		for !d.closed && (d.paused || d.pq.Len() == 0 || d.running >= d.concurrency) {
			d.cond.Wait()
		}
		if d.closed && d.pq.Len() == 0 {
			d.mu.Unlock()
			return
		}
		if d.paused || d.pq.Len() == 0 || d.running >= d.concurrency {
			d.mu.Unlock()
			continue
		}
		item := heap.Pop(&d.pq).(*queueItem)
		metricQueued.Set(float64(d.pq.Len()))
		d.running++
		metricRunning.Set(float64(d.running))
		d.mu.Unlock()

		d.wg.Add(1)
		go d.execute(item)
	}
}

func (d *Dispatcher) execute(item *queueItem) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.running--
		metricRunning.Set(float64(d.running))
		d.mu.Unlock()
		d.cond.Broadcast()
	}()

	d.mu.Lock()
	canceled := item.canceled
	d.mu.Unlock()
	if canceled {
		return
	}

	if d.hooks.OnActive != nil {
		d.hooks.OnActive(item.req)
	}

	resp, err := d.invoke(item.req)

	d.mu.Lock()
	alreadySent := item.canceled
	item.canceled = true
	d.mu.Unlock()

	if err != nil {
		wrapped := &HandlerError{Req: item.req, Err: err}
		if d.hooks.OnError != nil {
			d.hooks.OnError(item.req, wrapped)
		}
		if !alreadySent {
			select {
			case item.result <- outcome{nil, wrapped}:
			default:
			}
		}
		return
	}

	if d.hooks.OnComplete != nil {
		d.hooks.OnComplete(item.req, resp)
	}
	if !alreadySent {
		select {
		case item.result <- outcome{resp, nil}:
		default:
		}
	}
}

// invoke calls the handler, recovering a panic into an error so a faulty
// handler can never bring down the dispatch loop.
func (d *Dispatcher) invoke(req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	// The agent is treated as non-interruptible: the caller-facing timeout
	// in Dispatch races against this call, but the handler itself always
	// runs to completion once started.
	return d.handler(context.Background(), req)
}

// GetStatus returns an instantaneous snapshot of dispatcher occupancy.
func (d *Dispatcher) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Queued:      d.pq.Len(),
		Running:     d.running,
		Concurrency: d.concurrency,
		IsPaused:    d.paused,
	}
}

// Pause stops the dispatcher from starting new handler invocations.
// Requests already running are unaffected.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Resume re-enables draining the queue.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Clear drops every queued (not-yet-running) request, failing each
// caller's Dispatch call with ErrCancelled. Running requests are
// unaffected.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	dropped := make([]*queueItem, 0, d.pq.Len())
	for d.pq.Len() > 0 {
		item := heap.Pop(&d.pq).(*queueItem)
		item.canceled = true
		dropped = append(dropped, item)
	}
	metricQueued.Set(0)
	d.mu.Unlock()

	for _, item := range dropped {
		if d.hooks.OnError != nil {
			d.hooks.OnError(item.req, ErrCancelled)
		}
		select {
		case item.result <- outcome{nil, ErrCancelled}:
		default:
		}
	}
	d.cond.Broadcast()
}

// OnIdle blocks until the dispatcher has no queued and no running
// requests, or ctx is done.
func (d *Dispatcher) OnIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.mu.Lock()
		for d.pq.Len() > 0 || d.running > 0 {
			d.cond.Wait()
		}
		d.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown pauses the dispatcher, drops queued work, and waits for
// in-flight handler calls to finish. After Shutdown returns, further
// Dispatch calls fail with ErrShutdown.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.Pause()
	d.Clear()

	if err := d.OnIdle(ctx); err != nil {
		return err
	}
	d.cond.Broadcast()

	doneWg := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(doneWg)
	}()
	select {
	case <-doneWg:
	case <-ctx.Done():
		logs.Warn("[dispatch] shutdown timed out waiting for in-flight handlers")
		return ctx.Err()
	}
	return nil
}
