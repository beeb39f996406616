package pidlock

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func lockPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "lock.pid")
}

func TestAcquireAndRelease(t *testing.T) {
	path := lockPath(t)

	ok, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("fresh lock should be acquirable")
	}

	pid, found := ReadPID(path)
	if !found || pid != os.Getpid() {
		t.Fatalf("lock should record our pid, got %d (found=%v)", pid, found)
	}

	if err := Release(path); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, found := ReadPID(path); found {
		t.Error("lock file should be gone after release")
	}
}

func TestAcquireFailsWhileOwnerAlive(t *testing.T) {
	path := lockPath(t)

	// Our own process stands in for a live owner.
	if ok, _ := Acquire(path); !ok {
		t.Fatal("initial acquire should succeed")
	}
	ok, err := Acquire(path)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Error("acquire must fail while the owner is alive")
	}
	if !Alive(os.Getpid()) {
		t.Error("our own pid must be alive")
	}
}

func TestStaleLockIsReclaimable(t *testing.T) {
	path := lockPath(t)

	// Run a short-lived child and record its pid after it exits.
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	deadPID := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait child: %v", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock failed: %v", err)
	}
	if !ok {
		t.Fatal("stale lock must be reclaimable")
	}
	if pid, _ := ReadPID(path); pid != os.Getpid() {
		t.Errorf("reclaimed lock should record our pid, got %d", pid)
	}
}

func TestReadPIDGarbage(t *testing.T) {
	path := lockPath(t)

	if _, ok := ReadPID(path); ok {
		t.Error("missing file should not parse")
	}
	os.WriteFile(path, []byte("  \n"), 0o644)
	if _, ok := ReadPID(path); ok {
		t.Error("empty file should not parse")
	}
	os.WriteFile(path, []byte("not-a-pid"), 0o644)
	if _, ok := ReadPID(path); ok {
		t.Error("garbage should not parse")
	}
}

func TestReleaseNeverClobbersForeignLock(t *testing.T) {
	path := lockPath(t)

	// PID 1 is alive and is not us.
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Release(path); err != nil {
		t.Fatalf("Release on foreign lock errored: %v", err)
	}
	if pid, ok := ReadPID(path); !ok || pid != 1 {
		t.Error("foreign lock should be left untouched")
	}
}
