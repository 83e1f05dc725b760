package dispatch

import "errors"

// ErrCancelled is returned to a caller whose request was dropped by Clear
// before it reached the handler.
var ErrCancelled = errors.New("dispatch: request cancelled")

// ErrTimeout is returned when a request's per-request timeout elapses
// before the handler returns.
var ErrTimeout = errors.New("dispatch: request timed out")

// ErrShutdown is returned to callers that try to dispatch after the
// Dispatcher has been shut down.
var ErrShutdown = errors.New("dispatch: dispatcher is shut down")

// HandlerError wraps a panic or error returned by the handler so callers and
// event hooks see a consistent, comparable error shape regardless of what
// the handler itself produced.
type HandlerError struct {
	Req *Request
	Err error
}

func (e *HandlerError) Error() string {
	return "dispatch: handler failed for request " + e.Req.ID + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
