package dispatch

import (
	"context"
	"strings"
	"testing"
)

func TestSourceAdapter_AssignsPriorityAndID(t *testing.T) {
	var gotSource Source
	var gotPriority int
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		gotSource = req.Source
		gotPriority = req.effectivePriority()
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	a := NewSourceAdapter(d, SourceHeartbeat)

	req := &Request{SessionKey: "heartbeat", Content: "hi"}
	_, err := a.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gotSource != SourceHeartbeat {
		t.Fatalf("source = %s, want heartbeat", gotSource)
	}
	if gotPriority != 1 {
		t.Fatalf("priority = %d, want 1", gotPriority)
	}
	if !strings.HasPrefix(req.ID, "req_") {
		t.Fatalf("request ID %q missing req_ prefix", req.ID)
	}
}

func TestSourceAdapter_PreservesExplicitID(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Success: true}, nil
	}
	d := New(handler, Options{Concurrency: 1})
	a := NewSourceAdapter(d, SourceChat)

	req := &Request{ID: "explicit-id", SessionKey: "s"}
	_, _ = a.Handle(context.Background(), req)
	if req.ID != "explicit-id" {
		t.Fatalf("adapter overwrote explicit request ID: %s", req.ID)
	}
}
