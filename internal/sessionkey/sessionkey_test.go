package sessionkey

import "testing"

func TestUser(t *testing.T) {
	got := User("assistant", "alice")
	want := "agent:assistant:user:alice"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	parsed, err := Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Kind != KindUser || parsed.AgentID != "assistant" || parsed.UserID != "alice" {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestGuildAndThread(t *testing.T) {
	guild := Guild("telegram", "assistant", "g1", "c1", "u1")
	if guild != "telegram:assistant:guild:g1:c1:u1" {
		t.Fatalf("guild = %q", guild)
	}
	parsedGuild, err := Parse(guild)
	if err != nil || parsedGuild.Kind != KindGuild {
		t.Fatalf("parse guild: %+v err=%v", parsedGuild, err)
	}

	thread := Thread("telegram", "assistant", "g1", "c1", "t1", "u1")
	if thread != "telegram:assistant:guild:g1:c1:t1:u1" {
		t.Fatalf("thread = %q", thread)
	}
	parsedThread, err := Parse(thread)
	if err != nil || parsedThread.Kind != KindThread || parsedThread.ThreadID != "t1" {
		t.Fatalf("parse thread: %+v err=%v", parsedThread, err)
	}
}

func TestDM(t *testing.T) {
	dm := DM("telegram", "assistant", "u1")
	if dm != "telegram:assistant:dm:u1" {
		t.Fatalf("dm = %q", dm)
	}
	parsed, err := Parse(dm)
	if err != nil || parsed.Kind != KindDM {
		t.Fatalf("parse dm: %+v err=%v", parsed, err)
	}
}

func TestReservedKeys(t *testing.T) {
	for _, k := range []string{Heartbeat, Cron, Main} {
		if !IsReserved(k) {
			t.Fatalf("%s should be reserved", k)
		}
		parsed, err := Parse(k)
		if err != nil || parsed.Kind != KindReserved {
			t.Fatalf("parse %s: %+v err=%v", k, parsed, err)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{"", "garbage", "a:b", "a:b:c:d:e"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestReroute(t *testing.T) {
	key := DM("telegram", "assistant", "u1")
	if got := Reroute(key, "telegram", false); got != key {
		t.Fatalf("expected no reroute when disabled, got %q", got)
	}
	if got := Reroute(key, "telegram", true); got != Main {
		t.Fatalf("expected reroute to main, got %q", got)
	}
	if got := Reroute(key, "lark", true); got != key {
		t.Fatalf("expected no reroute for non-matching platform, got %q", got)
	}
	if got := Reroute(Heartbeat, "telegram", true); got != Heartbeat {
		t.Fatalf("expected reserved key unaffected, got %q", got)
	}
}
