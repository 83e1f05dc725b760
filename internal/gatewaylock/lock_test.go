package gatewaylock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestAcquire_WritesRecordAndCheckSeesIt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.lock")

	h, err := Acquire(Options{Path: path, HTTPPort: 8080})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h == nil {
		t.Fatal("expected non-nil handle")
	}
	defer h.Release()

	rec, live, err := CheckGatewayRunning(path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !live {
		t.Fatal("expected lock to report live")
	}
	if rec.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", rec.PID, os.Getpid())
	}
	if rec.HTTPPort != 8080 {
		t.Fatalf("httpPort = %d, want 8080", rec.HTTPPort)
	}
}

func TestAcquire_SecondCallerGetsLockHeld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.lock")

	h1, err := Acquire(Options{Path: path})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer h1.Release()

	_, err = Acquire(Options{Path: path})
	if err == nil {
		t.Fatal("expected second acquire to fail")
	}
	var held *LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *LockHeldError, got %T: %v", err, err)
	}
	if held.Held.PID != os.Getpid() {
		t.Fatalf("held pid = %d, want %d", held.Held.PID, os.Getpid())
	}
}

func TestAcquire_StaleLockFromDeadPIDIsRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.lock")

	// A pid that is very unlikely to exist.
	rec := Record{PID: 1 << 30, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	raw, _ := sonic.Marshal(rec)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	h, err := Acquire(Options{Path: path})
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed, got: %v", err)
	}
	defer h.Release()

	rec2, live, err := CheckGatewayRunning(path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !live || rec2.PID != os.Getpid() {
		t.Fatalf("expected current process to own the lock, got %+v live=%v", rec2, live)
	}
}

func TestAcquire_AllowMultipleSkipsLocking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.lock")

	h, err := Acquire(Options{Path: path, AllowMultiple: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h != nil {
		t.Fatal("expected nil handle when AllowMultiple is set")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected no lock file to be created")
	}
}

func TestRelease_RemovesLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.lock")

	h, err := Acquire(Options{Path: path})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected lock file to be removed after release")
	}
}

func TestCheckGatewayRunning_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "absent.lock")

	_, live, err := CheckGatewayRunning(path)
	if err != nil {
		t.Fatalf("expected no error for missing lock file, got %v", err)
	}
	if live {
		t.Fatal("expected live=false for missing lock file")
	}
}
