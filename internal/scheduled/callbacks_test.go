package scheduled

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/deca-sh/gateway/internal/cronjob"
	"github.com/deca-sh/gateway/internal/dispatch"
	"github.com/deca-sh/gateway/internal/heartbeat"
)

func newTestDispatcher(handler dispatch.Handler) *dispatch.Dispatcher {
	return dispatch.New(handler, dispatch.Options{Concurrency: 1})
}

func TestHeartbeatCallback_FormatsInstructionAndReturnsReport(t *testing.T) {
	var gotContent string
	var gotSessionKey string
	var gotPriority int
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		gotContent = req.Content
		gotSessionKey = req.SessionKey
		gotPriority = req.Priority
		return &dispatch.Response{Text: "Found 3 new commits", Success: true}, nil
	})

	b := NewBuilder(d, nil)
	cb := b.HeartbeatCallback()

	tasks := []heartbeat.Task{{Description: "Check repo"}}
	result, err := cb(context.Background(), tasks, heartbeat.Request{Reason: heartbeat.ReasonRequested})
	if err != nil {
		t.Fatalf("callback error: %v", err)
	}
	if result != "Found 3 new commits" {
		t.Fatalf("result = %q", result)
	}
	if gotSessionKey != "heartbeat" {
		t.Fatalf("sessionKey = %q, want heartbeat", gotSessionKey)
	}
	if gotPriority != 5 {
		t.Fatalf("priority = %d, want 5", gotPriority)
	}
	want := "[HEARTBEAT: requested] Execute pending tasks: Check repo. Reply with your report for the user. " +
		"Only reply HEARTBEAT_OK if HEARTBEAT.md does not require any reporting."
	if gotContent != want {
		t.Fatalf("content = %q, want %q", gotContent, want)
	}
}

func TestHeartbeatCallback_EmptyTasksSkipsDispatch(t *testing.T) {
	called := false
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		called = true
		return &dispatch.Response{Success: true}, nil
	})
	b := NewBuilder(d, nil)
	cb := b.HeartbeatCallback()

	result, err := cb(context.Background(), nil, heartbeat.Request{Reason: heartbeat.ReasonExec})
	if err != nil || result != "" {
		t.Fatalf("expected empty no-op result, got %q err=%v", result, err)
	}
	if called {
		t.Fatal("dispatcher should not be called for empty task list")
	}
}

func TestHeartbeatCallback_HeartbeatOKAloneReturnsEmpty(t *testing.T) {
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		return &dispatch.Response{Text: "HEARTBEAT_OK", Success: true}, nil
	})
	b := NewBuilder(d, nil)
	cb := b.HeartbeatCallback()

	result, err := cb(context.Background(), []heartbeat.Task{{Description: "x"}}, heartbeat.Request{Reason: heartbeat.ReasonInterval})
	if err != nil {
		t.Fatalf("callback error: %v", err)
	}
	if result != "" {
		t.Fatalf("expected empty result after stripping, got %q", result)
	}
}

func TestHeartbeatCallback_HeartbeatOKPlusTextReturnsRemainder(t *testing.T) {
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		return &dispatch.Response{Text: "  Report: all good HEARTBEAT_OK ", Success: true}, nil
	})
	b := NewBuilder(d, nil)
	cb := b.HeartbeatCallback()

	result, err := cb(context.Background(), []heartbeat.Task{{Description: "x"}}, heartbeat.Request{Reason: heartbeat.ReasonInterval})
	if err != nil {
		t.Fatalf("callback error: %v", err)
	}
	if result == "" {
		t.Fatal("expected non-empty remainder")
	}
	if strings.Contains(result, heartbeatOKToken) {
		t.Fatalf("expected token stripped from result, got %q", result)
	}
}

func TestHeartbeatCallback_DispatchErrorIsSwallowedAndReported(t *testing.T) {
	boom := errors.New("boom")
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		return nil, boom
	})
	var reportedErr error
	var reportedSource string
	b := NewBuilder(d, func(err error, source string) {
		reportedErr = err
		reportedSource = source
	})
	cb := b.HeartbeatCallback()

	result, err := cb(context.Background(), []heartbeat.Task{{Description: "x"}}, heartbeat.Request{Reason: heartbeat.ReasonInterval})
	if err != nil {
		t.Fatalf("expected callback to swallow dispatch error, got %v", err)
	}
	if result != "" {
		t.Fatalf("expected empty result on dispatch error, got %q", result)
	}
	if reportedErr == nil || reportedSource != "heartbeat" {
		t.Fatalf("onError not called correctly: err=%v source=%q", reportedErr, reportedSource)
	}
}

func TestCronCallback_FormatsInstructionAndDeliversVerbatim(t *testing.T) {
	var gotContent, gotSessionKey string
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		gotContent = req.Content
		gotSessionKey = req.SessionKey
		return &dispatch.Response{Text: "done", Success: true}, nil
	})
	var delivered string
	b := NewBuilder(d, nil)
	cb := b.CronCallback(func(ctx context.Context, text string) error {
		delivered = text
		return nil
	})

	job := cronjob.Job{Name: "one-shot", Instruction: "Send reminder"}
	if err := cb(context.Background(), job); err != nil {
		t.Fatalf("callback error: %v", err)
	}
	if gotContent != "[CRON TASK: one-shot] Send reminder" {
		t.Fatalf("content = %q", gotContent)
	}
	if gotSessionKey != "cron" {
		t.Fatalf("sessionKey = %q, want cron", gotSessionKey)
	}
	if delivered != "done" {
		t.Fatalf("delivered = %q, want verbatim reply", delivered)
	}
}

func TestCronCallback_DispatchErrorNeverPropagatesToScheduler(t *testing.T) {
	d := newTestDispatcher(func(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
		return nil, errors.New("boom")
	})
	var reportedSource string
	b := NewBuilder(d, func(err error, source string) { reportedSource = source })
	cb := b.CronCallback(func(ctx context.Context, text string) error { return nil })

	if err := cb(context.Background(), cronjob.Job{Name: "j", Instruction: "x"}); err != nil {
		t.Fatalf("expected nil error from CronCallback, got %v", err)
	}
	if reportedSource != "cron" {
		t.Fatalf("onError source = %q, want cron", reportedSource)
	}
}
