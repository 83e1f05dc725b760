// Package gatewaylock implements the single-instance guard for the
// gateway process: an atomically-created lock file with liveness and
// PID-recycling detection.
package gatewaylock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/deca-sh/gateway/internal/consts"
)

// AllowMultiEnv, when set to "1", makes Acquire a no-op that returns a nil
// Handle and no error.
const AllowMultiEnv = "DECA_ALLOW_MULTI_GATEWAY"

// Record is the JSON shape persisted in the lock file.
type Record struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"createdAt"`
	HTTPPort  int    `json:"httpPort,omitempty"`
	StartTime int64  `json:"startTime,omitempty"`
}

// LockHeldError is returned when another live process owns the lock. The
// caller can inspect Held for the owning process's record.
type LockHeldError struct {
	Held Record
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("gateway lock held by pid %d (created %s)", e.Held.PID, e.Held.CreatedAt)
}

// Handle is returned by Acquire. Release deletes the lock file. A nil
// Handle (with a nil error) means locking was skipped entirely.
type Handle struct {
	path string
}

// Release removes the lock file. Safe to call on a nil Handle.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	return os.Remove(h.path)
}

// Options configures Acquire.
type Options struct {
	// Path is the lock file location. Defaults to consts.GatewayLockPath().
	Path string
	// AllowMultiple skips locking entirely, mirroring the env override.
	AllowMultiple bool
	// HTTPPort is recorded in the lock file for diagnostic purposes.
	HTTPPort int
}

// Acquire creates the lock file atomically, or returns *LockHeldError if a
// live process already owns it. A stale lock (dead pid, or a live pid whose
// recorded start-time no longer matches — i.e. the pid was recycled) is
// removed and acquisition retried once.
func Acquire(opts Options) (*Handle, error) {
	if opts.AllowMultiple || os.Getenv(AllowMultiEnv) == "1" {
		return nil, nil
	}

	path := opts.Path
	if path == "" {
		path = consts.GatewayLockPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("gatewaylock: create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		rec := Record{
			PID:       os.Getpid(),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			HTTPPort:  opts.HTTPPort,
			StartTime: currentProcessStartIdentifier(),
		}
		raw, err := sonic.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("gatewaylock: marshal record: %w", err)
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if _, werr := f.Write(raw); werr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, fmt.Errorf("gatewaylock: write lock file: %w", werr)
			}
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("gatewaylock: close lock file: %w", cerr)
			}
			return &Handle{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("gatewaylock: create lock file: %w", err)
		}

		existing, readErr := readRecord(path)
		if readErr != nil {
			// Unreadable/corrupt lock file: treat as stale and retry once.
			_ = os.Remove(path)
			continue
		}
		if isLive(existing) {
			return nil, &LockHeldError{Held: existing}
		}
		_ = os.Remove(path)
	}

	return nil, fmt.Errorf("gatewaylock: failed to acquire lock after retry")
}

// CheckGatewayRunning performs the same liveness check as Acquire without
// taking the lock, returning the record only if a live process owns it.
func CheckGatewayRunning(path string) (Record, bool, error) {
	rec, err := readRecord(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, isLive(rec), nil
}

func readRecord(path string) (Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("gatewaylock: parse lock file: %w", err)
	}
	return rec, nil
}

// isLive reports whether rec's pid names a running process that also
// matches rec's recorded process-start identifier (when available), so a
// recycled pid is correctly treated as dead.
func isLive(rec Record) bool {
	if !pidAlive(rec.PID) {
		return false
	}
	if rec.StartTime == 0 {
		return true
	}
	cur, ok := processStartIdentifier(rec.PID)
	if !ok {
		// Platform can't tell us; fall back to the pid-alive check alone.
		return true
	}
	return cur == rec.StartTime
}
