package cronjob

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deca-sh/gateway/internal/consts"
)

const defaultStorePath = "cronjob/jobs.json"

// DefaultStorePath returns the gateway's default cron persistence file.
func DefaultStorePath() string {
	return filepath.Join(consts.StateDir(), defaultStorePath)
}

var (
	globalMu    sync.RWMutex
	globalSched *Scheduler
)

// Init creates the global scheduler. Call SetCallback and Initialize
// afterwards.
func Init(storePath string) *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSched = New(storePath)
	return globalSched
}

// Default returns the global scheduler, or nil if Init has not been called.
func Default() *Scheduler {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalSched
}

// LoadJobsFromStore reads persisted jobs directly from the store file
// without requiring a running scheduler, for CLI commands that inspect
// jobs offline.
func LoadJobsFromStore(storePath string) ([]Job, error) {
	store := NewStore(storePath)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store.List(), nil
}

// FormatJobList renders a human-readable summary of the given jobs.
func FormatJobList(jobs []Job) string {
	if len(jobs) == 0 {
		return "No scheduled jobs"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scheduled Jobs (%d):\n", len(jobs))

	for i, j := range jobs {
		fmt.Fprintf(&b, "\n%d. %s [%s]\n", i+1, j.Name, j.ID)
		fmt.Fprintf(&b, "   Schedule: %s %s\n", j.Schedule.Kind, scheduleSummary(j.Schedule))
		if j.Enabled {
			b.WriteString("   Enabled: yes\n")
		} else {
			b.WriteString("   Enabled: no\n")
		}
		if j.LastRunAtMS != 0 {
			fmt.Fprintf(&b, "   Last run: %s\n", time.UnixMilli(j.LastRunAtMS).Format(time.RFC3339))
		}
		if j.HasNextRun() {
			fmt.Fprintf(&b, "   Next run: %s\n", time.UnixMilli(j.NextRunAtMS).Format(time.RFC3339))
		}
	}

	return b.String()
}

func scheduleSummary(s Schedule) string {
	switch s.Kind {
	case ScheduleAt:
		return time.UnixMilli(s.AtMS).Format(time.RFC3339)
	case ScheduleEvery:
		return time.Duration(s.EveryMS * int64(time.Millisecond)).String()
	case ScheduleExpr:
		return s.Expr
	default:
		return ""
	}
}
