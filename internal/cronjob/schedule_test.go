package cronjob

import (
	"testing"
	"time"
)

func TestCalcNextRunMS_Every(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC).UnixMilli()
	sched := Schedule{Kind: ScheduleEvery, EveryMS: 5 * 60 * 1000}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := from + 5*60*1000; next != want {
		t.Errorf("got %d, want %d", next, want)
	}
}

func TestCalcNextRunMS_Every_Invalid(t *testing.T) {
	sched := Schedule{Kind: ScheduleEvery, EveryMS: 0}
	if _, err := calcNextRunMS(sched, time.Now().UnixMilli()); err == nil {
		t.Fatal("expected error for non-positive interval")
	}
}

func TestCalcNextRunMS_At_Future(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC).UnixMilli()
	atMS := from + 30_000
	sched := Schedule{Kind: ScheduleAt, AtMS: atMS}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != atMS {
		t.Errorf("got %d, want %d", next, atMS)
	}
}

func TestCalcNextRunMS_At_Past(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	sched := Schedule{Kind: ScheduleAt, AtMS: from - 1000}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 0 {
		t.Errorf("expected 0 (dormant) for past one-shot, got %d", next)
	}
}

func TestCalcNextRunMS_Expr_EveryMinute(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 30, 15, 0, time.UTC).UnixMilli()
	sched := Schedule{Kind: ScheduleExpr, Expr: "* * * * *"}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 15, 10, 31, 0, 0, time.UTC).UnixMilli()
	if next != want {
		t.Errorf("got %d, want %d", next, want)
	}
}

func TestCalcNextRunMS_Expr_MinuteOnly(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC).UnixMilli()
	sched := Schedule{Kind: ScheduleExpr, Expr: "15 * * * *"}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 15, 11, 15, 0, 0, time.UTC).UnixMilli()
	if next != want {
		t.Errorf("got %d, want %d", next, want)
	}
}

func TestCalcNextRunMS_Expr_MinuteHour(t *testing.T) {
	from := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC).UnixMilli()
	sched := Schedule{Kind: ScheduleExpr, Expr: "0 9 * * *"}

	next, err := calcNextRunMS(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC).UnixMilli()
	if next != want {
		t.Errorf("got %d, want %d", next, want)
	}

	// Past that time on the same day: advances to tomorrow.
	from2 := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC).UnixMilli()
	next2, err := calcNextRunMS(sched, from2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want2 := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC).UnixMilli()
	if next2 != want2 {
		t.Errorf("got %d, want %d", next2, want2)
	}
}

func TestCalcNextRunMS_Expr_Rejected(t *testing.T) {
	bad := []string{
		"* * 1 * *",
		"* * * 1 *",
		"* * * * 1",
		"a * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * * *",
		"not a cron expr at all",
	}
	for _, expr := range bad {
		sched := Schedule{Kind: ScheduleExpr, Expr: expr}
		if _, err := calcNextRunMS(sched, time.Now().UnixMilli()); err == nil {
			t.Errorf("expected rejection for expr %q", expr)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		consecutiveErr int
		want           time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 1 * time.Minute},
		{3, 5 * time.Minute},
		{4, 15 * time.Minute},
		{5, 60 * time.Minute},
		{100, 60 * time.Minute}, // capped
	}
	for _, tt := range tests {
		got := backoffDelay(tt.consecutiveErr)
		if got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.consecutiveErr, got, tt.want)
		}
	}
}
