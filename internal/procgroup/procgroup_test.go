package procgroup

import (
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestConfigureMakesGroupLeader(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	Configure(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		Signal(cmd.Process.Pid, syscall.SIGKILL)
		cmd.Wait()
	}()

	pgid, err := Pgid(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Pgid: %v", err)
	}
	if pgid != cmd.Process.Pid {
		t.Errorf("child should lead its own group: pid=%d pgid=%d", cmd.Process.Pid, pgid)
	}
}

func TestTerminateWithGrace(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	Configure(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	pgid, err := Pgid(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Pgid: %v", err)
	}

	start := time.Now()
	if err := TerminateWithGrace(pgid, 2*time.Second); err != nil {
		t.Fatalf("TerminateWithGrace: %v", err)
	}
	cmd.Wait()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("graceful termination took too long: %v", elapsed)
	}
	if alive(pgid) {
		t.Error("group should be dead after termination")
	}
}

func TestSignalDeadGroupIsNoError(t *testing.T) {
	cmd := exec.Command("true")
	Configure(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pgid, _ := Pgid(cmd.Process.Pid)
	cmd.Wait()

	if err := Signal(pgid, syscall.SIGTERM); err != nil {
		t.Errorf("signaling a dead group should be swallowed, got %v", err)
	}
	if err := TerminateWithGrace(pgid, 200*time.Millisecond); err != nil {
		t.Errorf("terminating a dead group should be swallowed, got %v", err)
	}
}
