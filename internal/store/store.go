// Package store provides file-backed persistence for nbq sessions: the
// per-session state document, the on-disk session layout, and staging of
// enqueued sources. The state document is written atomically (temp file,
// fsync, rename) so readers never observe a partial write. The store itself
// does no locking; callers serialize through the worker lock or accept
// last-writer-wins for rare concurrent CLI mutations.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nbqueue/nbq/internal/models"
)

const (
	StateFilename = "state.json"
	LockFilename  = "lock.pid"
	QueueDirname  = "queue"
	LogsDirname   = "logs"
	LatestRunName = "latest_run"
)

// Session is a directory-scoped queue+history+lock unit.
type Session struct {
	Root string
}

// ID is the timestamp-derived session name.
func (s Session) ID() string { return filepath.Base(s.Root) }

func (s Session) StatePath() string     { return filepath.Join(s.Root, StateFilename) }
func (s Session) LockPath() string      { return filepath.Join(s.Root, LockFilename) }
func (s Session) QueueDir() string      { return filepath.Join(s.Root, QueueDirname) }
func (s Session) LogsDir() string       { return filepath.Join(s.Root, LogsDirname) }
func (s Session) LatestRunLink() string { return filepath.Join(s.Root, LatestRunName) }

// EnsureLayout creates the session directory tree and an initial empty state
// document when none exists yet.
func (s Session) EnsureLayout() error {
	for _, dir := range []string{s.Root, s.QueueDir(), s.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session layout: %w", err)
		}
	}
	if _, err := os.Stat(s.StatePath()); os.IsNotExist(err) {
		return Save(s, models.DefaultState())
	}
	return nil
}

// Load reads the session's state document. It never fails: a missing or
// corrupt document yields a freshly initialized default state.
func Load(s Session) *models.State {
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		return models.DefaultState()
	}
	st := models.DefaultState()
	if err := json.Unmarshal(data, st); err != nil {
		return models.DefaultState()
	}
	if st.Queue == nil {
		st.Queue = []models.QueueItem{}
	}
	if st.History == nil {
		st.History = []models.QueueItem{}
	}
	return st
}

// Save atomically replaces the session's state document.
func Save(s Session, st *models.State) error {
	return WriteJSONAtomic(s.StatePath(), st)
}

// AppendQueue loads state, appends item to the queue tail and persists.
func AppendQueue(s Session, item models.QueueItem) error {
	st := Load(s)
	st.Queue = append(st.Queue, item)
	return Save(s, st)
}

// ClearQueue empties the pending queue, leaving current and history alone.
func ClearQueue(s Session) error {
	st := Load(s)
	st.Queue = []models.QueueItem{}
	return Save(s, st)
}

// WriteJSONAtomic serializes v pretty-printed and atomically replaces path:
// write to a temp file in the same directory, flush to stable storage, then
// rename over the target.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
