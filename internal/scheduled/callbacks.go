// Package scheduled builds the two callbacks that connect the Heartbeat
// and Cron schedulers to the Dispatcher: instruction formatting, fixed
// session keys and priorities, and the heartbeat's HEARTBEAT_OK
// suppression rule.
package scheduled

import (
	"context"
	"fmt"
	"strings"

	"github.com/deca-sh/gateway/internal/cronjob"
	"github.com/deca-sh/gateway/internal/dispatch"
	"github.com/deca-sh/gateway/internal/heartbeat"
)

// heartbeatOKToken is stripped (anywhere, case-sensitive) from a heartbeat
// reply before delivery; if nothing remains, the reply is suppressed.
const heartbeatOKToken = "HEARTBEAT_OK"

// schedulerPriority overrides the dispatcher's baseline source priorities
// (cron=5, heartbeat=1) for requests originating from these callbacks.
const schedulerPriority = 5

// Deliverer sends a finished reply somewhere a human can see it (a chat
// channel, a log, a test spy). Builder callbacks never deliver directly;
// they always go through one of these so delivery failures stay isolated
// from the scheduler loop.
type Deliverer func(ctx context.Context, text string) error

// Builder wires a Dispatcher to the heartbeat and cron callback shapes.
type Builder struct {
	dispatcher *dispatch.Dispatcher
	onError    func(err error, source string)
}

// NewBuilder constructs a Builder. onError is called whenever a dispatch
// or delivery fails; it may be nil.
func NewBuilder(d *dispatch.Dispatcher, onError func(err error, source string)) *Builder {
	return &Builder{dispatcher: d, onError: onError}
}

func (b *Builder) reportError(err error, source string) {
	if b.onError != nil {
		b.onError(err, source)
	}
}

// HeartbeatCallback returns an OnTasksFunc suitable for heartbeat.Options.
// It dispatches the formatted instruction and strips HEARTBEAT_OK from the
// reply, returning the remainder as the candidate report text. It never
// delivers the text itself: the heartbeat scheduler only calls its
// OnDeliver hook once it has confirmed the text is non-empty and not a
// duplicate of recent history, so delivery and duplicate suppression stay
// in one place.
func (b *Builder) HeartbeatCallback() heartbeat.OnTasksFunc {
	return func(ctx context.Context, tasks []heartbeat.Task, req heartbeat.Request) (string, error) {
		if len(tasks) == 0 {
			return "", nil
		}

		descs := make([]string, len(tasks))
		for i, t := range tasks {
			descs[i] = t.Description
		}
		instruction := fmt.Sprintf(
			"[HEARTBEAT: %s] Execute pending tasks: %s. Reply with your report for the user. "+
				"Only reply HEARTBEAT_OK if HEARTBEAT.md does not require any reporting.",
			req.Reason, strings.Join(descs, ", "),
		)

		resp, err := b.dispatcher.Dispatch(ctx, &dispatch.Request{
			SessionKey: "heartbeat",
			Content:    instruction,
			Source:     dispatch.SourceHeartbeat,
			Priority:   schedulerPriority,
		})
		if err != nil {
			// Swallowed here per the same policy as the cron callback: the
			// heartbeat scheduler's duplicate-suppression window should
			// never see a dispatch failure as "the same text as before".
			b.reportError(err, "heartbeat")
			return "", nil
		}

		stripped := strings.TrimSpace(strings.ReplaceAll(resp.Text, heartbeatOKToken, ""))
		return stripped, nil
	}
}

// CronCallback returns a cronjob.Callback that dispatches the job's
// instruction and delivers the reply verbatim, with no suppression.
func (b *Builder) CronCallback(deliver Deliverer) cronjob.Callback {
	return func(ctx context.Context, job cronjob.Job) error {
		instruction := fmt.Sprintf("[CRON TASK: %s] %s", job.Name, job.Instruction)

		resp, err := b.dispatcher.Dispatch(ctx, &dispatch.Request{
			SessionKey: "cron",
			Content:    instruction,
			Source:     dispatch.SourceCron,
			Priority:   schedulerPriority,
		})
		if err != nil {
			// Dispatch errors are swallowed here and surfaced only through
			// onError: the cron timer loop must never see a callback
			// failure as a reason to stop scheduling.
			b.reportError(err, "cron")
			return nil
		}

		if err := deliver(ctx, resp.Text); err != nil {
			b.reportError(err, "cron")
		}
		return nil
	}
}
