package cronjob

import "time"

// ScheduleKind selects how a job's next run time is computed.
type ScheduleKind string

const (
	// ScheduleAt fires once at an absolute epoch-millisecond timestamp.
	ScheduleAt ScheduleKind = "at"
	// ScheduleEvery fires on a fixed interval, in milliseconds.
	ScheduleEvery ScheduleKind = "every"
	// ScheduleExpr fires per a restricted five-field expression; see
	// schedule.go for the accepted grammar.
	ScheduleExpr ScheduleKind = "expr"
)

// Schedule is a tagged union over the three schedule kinds. Only the field
// matching Kind is meaningful.
type Schedule struct {
	Kind    ScheduleKind `json:"kind"`
	AtMS    int64        `json:"atMs,omitempty"`
	EveryMS int64        `json:"everyMs,omitempty"`
	Expr    string       `json:"expr,omitempty"`
}

// Job is a single persisted scheduled unit of work.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Instruction string   `json:"instruction"`
	Schedule    Schedule `json:"schedule"`
	Enabled     bool     `json:"enabled"`

	CreatedAt      time.Time `json:"createdAt"`
	LastRunAtMS    int64     `json:"lastRunAtMs,omitempty"`
	NextRunAtMS    int64     `json:"nextRunAtMs,omitempty"`
	ConsecutiveErr int       `json:"consecutiveErr,omitempty"`
}

// HasNextRun reports whether the job has a defined next-run time, i.e. it
// is not dormant.
func (j Job) HasNextRun() bool {
	return j.NextRunAtMS != 0
}

// JobInput is the caller-supplied shape for AddJob; ID, CreatedAt, and the
// run-state fields are assigned by the scheduler.
type JobInput struct {
	Name        string
	Instruction string
	Schedule    Schedule
	Enabled     bool
}
