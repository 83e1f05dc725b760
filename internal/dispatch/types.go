package dispatch

import (
	"context"
	"time"
)

// Source identifies the origin of a dispatch request. It is the only axis
// along which default priority is chosen; see PriorityFor.
type Source string

const (
	SourceChat      Source = "chat"
	SourceHTTP      Source = "http"
	SourceTerminal  Source = "terminal"
	SourceCron      Source = "cron"
	SourceHeartbeat Source = "heartbeat"
)

// PriorityFor returns the fixed priority associated with a request source.
// Higher values run earlier. Callers needing a different priority for a
// specific request (the scheduled callback builder elevates heartbeat
// dispatches, for example) set Request.Priority explicitly instead of
// relying on this mapping.
func PriorityFor(src Source) int {
	switch src {
	case SourceChat, SourceHTTP, SourceTerminal:
		return 10
	case SourceCron:
		return 5
	case SourceHeartbeat:
		return 1
	default:
		return 0
	}
}

// Sender identifies who produced a request's content.
type Sender struct {
	ID          string
	DisplayName string
}

// Callbacks lets a caller observe a request's progress while it is handled.
// Both hooks are optional; a nil hook is simply never invoked.
type Callbacks struct {
	// OnTextDelta streams incremental text as the handler produces it.
	OnTextDelta func(delta string)
	// OnReply is invoked for intermediate replies emitted before the final
	// response (for example tool-use narration).
	OnReply func(text string, meta map[string]string)
}

// Request is a normalized unit of work submitted to the Dispatcher.
type Request struct {
	ID         string
	SessionKey string
	Content    string
	Sender     Sender
	Source     Source
	// Priority overrides the source's default priority when non-zero.
	// Use PriorityFor(Source) explicitly if zero is a legitimate priority.
	Priority  int
	Timeout   time.Duration
	Callbacks *Callbacks

	enqueuedAt time.Time
	seq        uint64
}

// effectivePriority resolves Priority, falling back to the source default.
func (r *Request) effectivePriority() int {
	if r.Priority != 0 {
		return r.Priority
	}
	return PriorityFor(r.Source)
}

// Response is the result of handling a Request.
type Response struct {
	Text    string
	Success bool
	Error   string
}

// Handler is the opaque worker the Dispatcher serializes calls into. It is
// typically backed by an LLM agent; the Dispatcher only knows it takes a
// Request and returns a Response or an error.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// EventHooks are optional callbacks fired as a request moves through the
// Dispatcher's lifecycle. Any hook may be nil.
type EventHooks struct {
	OnEnqueue  func(req *Request)
	OnActive   func(req *Request)
	OnComplete func(req *Request, resp *Response)
	OnError    func(req *Request, err error)
}

// Status is an instantaneous snapshot of dispatcher occupancy.
type Status struct {
	Queued      int
	Running     int
	Concurrency int
	IsPaused    bool
}
