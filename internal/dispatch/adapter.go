package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceAdapter wraps a Dispatcher as a per-source message handler. It is
// the only place source-to-priority policy lives: every channel, cron, or
// heartbeat caller goes through one of these rather than touching the
// Dispatcher's priority field directly.
type SourceAdapter struct {
	dispatcher *Dispatcher
	source     Source
}

// NewSourceAdapter binds a Dispatcher to a fixed request source.
func NewSourceAdapter(d *Dispatcher, source Source) *SourceAdapter {
	return &SourceAdapter{dispatcher: d, source: source}
}

// Handle assigns the adapter's source and a request ID (if absent), then
// forwards req to the Dispatcher and returns its response verbatim.
// Dispatcher errors are propagated unchanged.
func (a *SourceAdapter) Handle(ctx context.Context, req *Request) (*Response, error) {
	req.Source = a.source
	if req.ID == "" {
		req.ID = NewRequestID()
	}
	return a.dispatcher.Dispatch(ctx, req)
}

// NewRequestID produces a unique request identifier of the form
// req_<monotonic_timestamp>_<random_suffix>.
func NewRequestID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(buf[:]))
}
