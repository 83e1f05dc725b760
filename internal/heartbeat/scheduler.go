package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/deca-sh/gateway/internal/pkg/logs"
)

// defaultDedupWindowSize is the sliding-window entry count for duplicate
// suppression.
const defaultDedupWindowSize = 5

// defaultDedupWindowAge is the sliding-window time span for duplicate
// suppression.
const defaultDedupWindowAge = 5 * time.Minute

// Options configures a Scheduler.
type Options struct {
	TaskFilePath string
	// Interval is the periodic trigger period. <= 0 disables the timer
	// loop (only external RequestNow calls fire).
	Interval time.Duration
	// CoalesceWindow merges triggers arriving within this span into a
	// single invocation. 0 disables coalescing.
	CoalesceWindow time.Duration
	// DedupWindowSize and DedupWindowAge bound the sliding duplicate
	// suppression window. Zero values fall back to the package defaults.
	DedupWindowSize int
	DedupWindowAge  time.Duration

	OnTasks OnTasksFunc
	// OnDeliver is invoked with the text OnTasks produced, but only when it
	// is non-empty and not a duplicate of recent history. This is the sole
	// path by which a heartbeat report reaches the user.
	OnDeliver func(ctx context.Context, text string) error
	OnError   func(err error)
}

type historyEntry struct {
	text string
	at   time.Time
}

// Scheduler owns the heartbeat timer and the duplicate-suppression window.
type Scheduler struct {
	opts Options

	mu            sync.Mutex
	running       bool
	pendingReason *Reason
	coalesceTimer *time.Timer
	history       []historyEntry

	timer  *time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New constructs a Scheduler. Call Start to begin the interval timer loop.
func New(opts Options) *Scheduler {
	if opts.DedupWindowSize <= 0 {
		opts.DedupWindowSize = defaultDedupWindowSize
	}
	if opts.DedupWindowAge <= 0 {
		opts.DedupWindowAge = defaultDedupWindowAge
	}
	return &Scheduler{opts: opts}
}

// Start begins the periodic interval timer. A no-op if Interval <= 0.
func (s *Scheduler) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RequestNow(ReasonInterval)
			}
		}
	}()
}

// Stop cancels the interval timer and waits for it to exit. A trigger that
// is already running is not interrupted; a trigger still in its coalescing
// window or queued behind the running one is dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RequestNow triggers the scheduler with the given reason. If a trigger is
// already in flight, this one is queued (run once the current one
// finishes) rather than run in parallel. If a coalescing window is
// configured, triggers arriving within it are merged into one invocation.
func (s *Scheduler) RequestNow(reason Reason) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.running {
		r := reason
		s.pendingReason = &r
		s.mu.Unlock()
		return
	}
	if s.coalesceTimer != nil {
		r := reason
		s.pendingReason = &r
		s.mu.Unlock()
		return
	}
	if s.opts.CoalesceWindow > 0 {
		r := reason
		s.pendingReason = &r
		s.coalesceTimer = time.AfterFunc(s.opts.CoalesceWindow, s.fireCoalesced)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.runTrigger(reason)
}

func (s *Scheduler) fireCoalesced() {
	s.mu.Lock()
	reason := ReasonInterval
	if s.pendingReason != nil {
		reason = *s.pendingReason
	}
	s.pendingReason = nil
	s.coalesceTimer = nil
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.runTrigger(reason)
}

// runTrigger performs exactly one invocation cycle, then, if a trigger was
// queued while this one ran, kicks it off.
func (s *Scheduler) runTrigger(reason Reason) {
	_ = s.Trigger(context.Background(), reason)

	s.mu.Lock()
	s.running = false
	var next *Reason
	if s.pendingReason != nil {
		next = s.pendingReason
		s.pendingReason = nil
	}
	s.mu.Unlock()

	if next != nil {
		s.RequestNow(*next)
	}
}

// Trigger runs one heartbeat cycle synchronously and returns its outcome.
// Exposed directly for tests and for callers that want to await the
// result; RequestNow is the fire-and-forget entry point used in
// production.
func (s *Scheduler) Trigger(ctx context.Context, reason Reason) Outcome {
	tasks, err := ParseTaskFile(s.opts.TaskFilePath)
	if err != nil {
		s.reportError(err)
		return Outcome{Err: err}
	}
	pending := PendingTasks(tasks)

	if reason != ReasonExec && len(pending) == 0 {
		return Outcome{Skipped: SkipNoPendingTasks}
	}

	if s.opts.OnTasks == nil {
		return Outcome{Skipped: SkipNoPendingTasks}
	}

	text, err := s.opts.OnTasks(ctx, pending, Request{Reason: reason})
	if err != nil {
		s.reportError(err)
		return Outcome{Err: err}
	}

	if text == "" {
		return Outcome{Invoked: true}
	}

	if s.isDuplicate(text) {
		return Outcome{Invoked: true, Skipped: SkipDuplicateMessage, Text: text}
	}
	s.recordHistory(text)

	if s.opts.OnDeliver != nil {
		if err := s.opts.OnDeliver(ctx, text); err != nil {
			s.reportError(err)
		}
	}
	return Outcome{Invoked: true, Text: text}
}

func (s *Scheduler) isDuplicate(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.opts.DedupWindowAge)
	for _, h := range s.history {
		if h.at.Before(cutoff) {
			continue
		}
		if h.text == text {
			return true
		}
	}
	return false
}

func (s *Scheduler) recordHistory(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, historyEntry{text: text, at: time.Now()})
	if len(s.history) > s.opts.DedupWindowSize {
		s.history = s.history[len(s.history)-s.opts.DedupWindowSize:]
	}
}

func (s *Scheduler) reportError(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
		return
	}
	logs.Warn("[heartbeat] %v", err)
}
