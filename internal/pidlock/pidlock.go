// Package pidlock implements single-worker mutual exclusion through a PID
// file. A lock naming a dead process is stale and reclaimable by any caller;
// the narrow race between the staleness check and the write is accepted for
// this single-user CLI setting.
package pidlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ReadPID returns the PID recorded in the lock file, or ok=false when the
// file is missing, empty or unparsable.
func ReadPID(path string) (pid int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Alive reports whether pid names a live process. Permission denied means the
// process exists under another user, so it counts as alive.
func Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Acquire attempts to take the lock for the calling process. It fails without
// mutation when a live owner holds it, and reclaims missing, empty or
// dead-PID files.
func Acquire(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	if pid, ok := ReadPID(path); ok && Alive(pid) {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return false, fmt.Errorf("write lock: %w", err)
	}
	return true, nil
}

// Release removes the lock file only when it names the calling process.
// A lock owned by someone else is left untouched.
func Release(path string) error {
	pid, ok := ReadPID(path)
	if !ok || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}
