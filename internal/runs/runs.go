// Package runs manages per-execution run directories: staging the source,
// producing the execution input, and recording the completion status.
package runs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nbqueue/nbq/internal/store"
)

const (
	InputName    = "input.ipynb"
	ExecutedName = "executed.ipynb"
	LogName      = "run.log"
	StatusName   = "status.json"
)

// Converter turns a non-notebook source into an execution-ready notebook.
// Implemented by the external jupytext tool; tests substitute their own.
type Converter interface {
	Convert(src, dst string) error
}

// Prepared holds the paths of one staged run.
type Prepared struct {
	Dir          string
	SourceCopy   string
	InputPath    string
	ExecutedPath string
	LogPath      string
}

// NewRunID returns a high-resolution id for a run directory, distinct from
// queue item ids and monotonic-ish by millisecond prefix.
func NewRunID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:4])
}

// Prepare stages queuedFile into a fresh run directory under sessionRoot:
// the source is copied verbatim as source.<ext>, and the execution input is
// either the source itself (.ipynb) or the converter's output. The queue
// snapshot is never mutated.
func Prepare(queuedFile, sessionRoot string, conv Converter) (*Prepared, error) {
	dir := filepath.Join(sessionRoot, NewRunID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	abs, err := filepath.Abs(queuedFile)
	if err != nil {
		return nil, fmt.Errorf("resolve queued file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(abs))
	sourceCopy := filepath.Join(dir, "source"+ext)
	if err := copyFile(abs, sourceCopy); err != nil {
		return nil, err
	}

	p := &Prepared{
		Dir:          dir,
		SourceCopy:   sourceCopy,
		InputPath:    filepath.Join(dir, InputName),
		ExecutedPath: filepath.Join(dir, ExecutedName),
		LogPath:      filepath.Join(dir, LogName),
	}
	if ext == ".ipynb" {
		p.InputPath = sourceCopy
		return p, nil
	}
	if conv == nil {
		return nil, fmt.Errorf("no converter available for %s source", ext)
	}
	if err := conv.Convert(sourceCopy, p.InputPath); err != nil {
		return nil, fmt.Errorf("convert %s: %w", filepath.Base(sourceCopy), err)
	}
	return p, nil
}

// Status is the per-run completion document, written exactly once.
type Status struct {
	StartedAt  string  `json:"started_at"`
	EndedAt    string  `json:"ended_at"`
	Success    bool    `json:"success"`
	Returncode int     `json:"returncode"`
	Error      *string `json:"error"`
}

// WriteStatus records the run outcome atomically in the run directory.
func WriteStatus(runDir string, st Status) error {
	return store.WriteJSONAtomic(filepath.Join(runDir, StatusName), st)
}

// UpdateLatestLink points the session's latest_run symlink at runDir.
// Best-effort: a failure here never affects correctness.
func UpdateLatestLink(sessionRoot, runDir string) error {
	link := filepath.Join(sessionRoot, store.LatestRunName)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale link: %w", err)
	}
	if err := os.Symlink(runDir, link); err != nil {
		return fmt.Errorf("link latest run: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create source copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy source: %w", err)
	}
	return out.Close()
}
