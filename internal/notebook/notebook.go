// Package notebook wraps the external notebook tooling behind narrow
// interfaces: jupytext converts scripts into executable notebooks, papermill
// runs them. The worker only ever sees an Engine and the exit code and log
// stream it produces.
package notebook

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nbqueue/nbq/internal/procgroup"
)

// LaunchSpec describes one execution subprocess.
type LaunchSpec struct {
	InputPath    string
	ExecutedPath string
	LogPath      string
	Kernel       string
	// TimeoutSec is the per-cell timeout; 0 means none.
	TimeoutSec int
}

// Proc is a handle on a launched execution subprocess. The child is always a
// process group leader, so its PID doubles as the group to signal.
type Proc interface {
	PID() int
	// Wait blocks until the subprocess exits and returns its exit code.
	Wait() (int, error)
}

// Engine launches execution subprocesses.
type Engine interface {
	Name() string
	Launch(spec LaunchSpec) (Proc, error)
}

// Papermill is the real execution engine.
type Papermill struct{}

func (Papermill) Name() string { return "papermill" }

// Launch starts papermill in its own process group with stdout and stderr
// appended to the run log. The child runs in the input notebook's directory
// with unbuffered python output.
func (Papermill) Launch(spec LaunchSpec) (Proc, error) {
	args := []string{spec.InputPath, spec.ExecutedPath, "--kernel", spec.Kernel}
	if spec.TimeoutSec > 0 {
		args = append(args, "--execution-timeout", strconv.Itoa(spec.TimeoutSec))
	}

	logFile, err := os.OpenFile(spec.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	cmd := exec.Command("papermill", args...)
	cmd.Dir = filepath.Dir(spec.InputPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	procgroup.Configure(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start papermill: %w", err)
	}
	return &proc{cmd: cmd, log: logFile}, nil
}

type proc struct {
	cmd *exec.Cmd
	log *os.File
}

func (p *proc) PID() int { return p.cmd.Process.Pid }

func (p *proc) Wait() (int, error) {
	err := p.cmd.Wait()
	p.log.Close()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait papermill: %w", err)
}

// Jupytext converts percent scripts and other text formats to .ipynb by
// invoking the jupytext CLI.
type Jupytext struct{}

func (Jupytext) Convert(src, dst string) error {
	cmd := exec.Command("jupytext", "--to", "ipynb", "--output", dst, src)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("jupytext: %w: %s", err, detail)
		}
		return fmt.Errorf("jupytext: %w", err)
	}
	return nil
}
