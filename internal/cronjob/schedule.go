package cronjob

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// calcNextRunMS computes job's next run time, in epoch milliseconds,
// relative to fromMS. A zero result means the job is dormant (a past `at`).
func calcNextRunMS(sched Schedule, fromMS int64) (int64, error) {
	switch sched.Kind {
	case ScheduleEvery:
		if sched.EveryMS <= 0 {
			return 0, fmt.Errorf("every interval must be positive, got %dms", sched.EveryMS)
		}
		return fromMS + sched.EveryMS, nil

	case ScheduleAt:
		if sched.AtMS > fromMS {
			return sched.AtMS, nil
		}
		return 0, nil

	case ScheduleExpr:
		return nextExprRunMS(sched.Expr, fromMS)

	default:
		return 0, fmt.Errorf("unknown schedule kind: %q", sched.Kind)
	}
}

// nextExprRunMS implements the restricted five-field expression grammar:
// only `* * * * *`, `M * * * *`, and `M H * * *` are accepted, with M and H
// literal integers in their usual ranges. Any other shape is rejected with
// "Invalid cron expression".
func nextExprRunMS(expr string, fromMS int64) (int64, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 || fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return 0, fmt.Errorf("Invalid cron expression")
	}
	minuteField, hourField := fields[0], fields[1]

	from := time.UnixMilli(fromMS).UTC()

	switch {
	case minuteField == "*" && hourField == "*":
		next := from.Truncate(time.Minute).Add(time.Minute)
		return next.UnixMilli(), nil

	case hourField == "*":
		minute, err := parseField(minuteField, 0, 59)
		if err != nil {
			return 0, err
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), from.Hour(), minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
		return next.UnixMilli(), nil

	default:
		minute, err := parseField(minuteField, 0, 59)
		if err != nil {
			return 0, err
		}
		hour, err := parseField(hourField, 0, 23)
		if err != nil {
			return 0, err
		}
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next.UnixMilli(), nil
	}
}

func parseField(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("Invalid cron expression")
	}
	return n, nil
}

// backoffSteps defines exponential retry delays on consecutive failures.
var backoffSteps = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute, // cap
}

// backoffDelay returns the retry delay for the given consecutive error count.
func backoffDelay(consecutiveErr int) time.Duration {
	idx := consecutiveErr - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSteps) {
		idx = len(backoffSteps) - 1
	}
	return backoffSteps[idx]
}
