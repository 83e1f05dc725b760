package cronx

import (
	"testing"

	"github.com/deca-sh/gateway/internal/cronjob"
)

func TestParseSchedule(t *testing.T) {
	t.Run("every", func(t *testing.T) {
		sched, err := parseSchedule("every", "5m")
		if err != nil {
			t.Fatalf("parseSchedule error: %v", err)
		}
		if sched.Kind != cronjob.ScheduleEvery || sched.EveryMS != 300_000 {
			t.Fatalf("unexpected schedule: %+v", sched)
		}
	})

	t.Run("at", func(t *testing.T) {
		sched, err := parseSchedule("at", "2026-03-01T09:00:00Z")
		if err != nil {
			t.Fatalf("parseSchedule error: %v", err)
		}
		if sched.Kind != cronjob.ScheduleAt || sched.AtMS == 0 {
			t.Fatalf("unexpected schedule: %+v", sched)
		}
	})

	t.Run("expr", func(t *testing.T) {
		sched, err := parseSchedule("expr", "30 9 * * *")
		if err != nil {
			t.Fatalf("parseSchedule error: %v", err)
		}
		if sched.Kind != cronjob.ScheduleExpr || sched.Expr != "30 9 * * *" {
			t.Fatalf("unexpected schedule: %+v", sched)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := parseSchedule("weekly", "x"); err == nil {
			t.Fatal("expected error for unknown schedule_kind")
		}
	})

	t.Run("bad every duration", func(t *testing.T) {
		if _, err := parseSchedule("every", "not-a-duration"); err == nil {
			t.Fatal("expected error for invalid duration")
		}
	})

	t.Run("missing value", func(t *testing.T) {
		if _, err := parseSchedule("every", ""); err == nil {
			t.Fatal("expected error for missing schedule value")
		}
	})
}

func TestScheduleValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   cronjob.Schedule
		want string
	}{
		{"every", cronjob.Schedule{Kind: cronjob.ScheduleEvery, EveryMS: 90_000}, "1m30s"},
		{"expr", cronjob.Schedule{Kind: cronjob.ScheduleExpr, Expr: "0 9 * * *"}, "0 9 * * *"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scheduleValue(tc.in); got != tc.want {
				t.Fatalf("scheduleValue() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCronTool_NameAndDescription(t *testing.T) {
	tool := NewCronTool()
	if tool.Name() != "cronx" {
		t.Errorf("expected name cronx, got %s", tool.Name())
	}
	if tool.Description() == "" {
		t.Error("expected non-empty description")
	}
	if info := tool.ToolInfo(); info.Name != "cronx" {
		t.Errorf("expected ToolInfo name cronx, got %s", info.Name)
	}
}

func TestCronTool_Execute_WithoutScheduler(t *testing.T) {
	tool := NewCronTool()
	_, err := tool.Execute(t.Context(), map[string]interface{}{"action": "list"})
	if err == nil {
		t.Fatal("expected error when no global scheduler is initialized")
	}
}
