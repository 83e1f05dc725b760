// Package heartbeat implements the Heartbeat Scheduler: a periodic and
// event-driven trigger that reads a checkbox task file, invokes a
// registered callback with the pending tasks, and suppresses duplicate or
// empty-work replies.
package heartbeat

import "context"

// Reason identifies what caused a trigger.
type Reason string

const (
	ReasonInterval  Reason = "interval"
	ReasonCron      Reason = "cron"
	ReasonExec      Reason = "exec"
	ReasonRequested Reason = "requested"
)

// Task is one checkbox line from the task file.
type Task struct {
	Description string
	Completed   bool
	RawLine     string
	LineNumber  int
}

// Request is passed to the OnTasks callback alongside the pending tasks.
type Request struct {
	Reason Reason
}

// OnTasksFunc is invoked with the pending tasks for a trigger and must
// return the callback's text result.
type OnTasksFunc func(ctx context.Context, tasks []Task, req Request) (string, error)

// SkipReason names why a trigger produced no callback invocation, or why a
// callback's result was not delivered.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNoPendingTasks   SkipReason = "no-pending-tasks"
	SkipDuplicateMessage SkipReason = "duplicate-message"
)

// Outcome reports what happened for a single trigger.
type Outcome struct {
	Invoked bool
	Skipped SkipReason
	Text    string
	Err     error
}
