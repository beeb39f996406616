// Package procgroup launches subprocesses as process group leaders and
// signals the whole group, so a child's entire descendant tree can be torn
// down as one unit.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

const pollStep = 100 * time.Millisecond

// Configure marks cmd to start in a fresh session, making the child the
// leader of its own process group.
func Configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// Pgid returns the process group id for pid.
func Pgid(pid int) (int, error) {
	return syscall.Getpgid(pid)
}

// Signal delivers sig to every process in the group. A group that no longer
// exists counts as success, and permission failures are best-effort.
func Signal(pgid int, sig syscall.Signal) error {
	err := syscall.Kill(-pgid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		return nil
	}
	return err
}

// alive probes the group without swallowing ESRCH.
func alive(pgid int) bool {
	err := syscall.Kill(-pgid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// TerminateWithGrace sends SIGTERM to the group, waits up to grace polling at
// a fixed short interval, then unconditionally sends SIGKILL. Safe to call on
// an already-dead group.
func TerminateWithGrace(pgid int, grace time.Duration) error {
	if err := Signal(pgid, syscall.SIGTERM); err != nil {
		return err
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !alive(pgid) {
			break
		}
		time.Sleep(pollStep)
	}
	return Signal(pgid, syscall.SIGKILL)
}
