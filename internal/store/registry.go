package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/pidlock"
)

// Registry enumerates and creates sessions under an explicit home directory.
type Registry struct {
	Home string
}

// ListSessions returns every subdirectory of the home that holds a valid
// state document, ordered by session id (which is chronological order).
func (r Registry) ListSessions() ([]Session, error) {
	if err := os.MkdirAll(r.Home, 0o755); err != nil {
		return nil, fmt.Errorf("create home directory: %w", err)
	}
	entries, err := os.ReadDir(r.Home)
	if err != nil {
		return nil, fmt.Errorf("read home directory: %w", err)
	}
	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s := Session{Root: filepath.Join(r.Home, e.Name())}
		if _, err := os.Stat(s.StatePath()); err == nil {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID() < sessions[j].ID() })
	return sessions, nil
}

// ActiveSession scans most-recent-first and returns the first session whose
// lock file names a live worker, or nil when none is active.
func (r Registry) ActiveSession() (*Session, error) {
	sessions, err := r.ListSessions()
	if err != nil {
		return nil, err
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if pid, ok := pidlock.ReadPID(sessions[i].LockPath()); ok && pidlock.Alive(pid) {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// LatestSession returns the chronologically last session regardless of
// liveness, or nil when the home is empty.
func (r Registry) LatestSession() (*Session, error) {
	sessions, err := r.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[len(sessions)-1], nil
}

// NewSession creates a fresh session with the standard layout.
func (r Registry) NewSession() (Session, error) {
	s := Session{Root: filepath.Join(r.Home, models.NewSessionID())}
	if err := s.EnsureLayout(); err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetOrCreate prefers the active session, then the latest one (so new items
// join an existing backlog instead of fragmenting history), and only then
// creates a new session.
func (r Registry) GetOrCreate() (Session, error) {
	active, err := r.ActiveSession()
	if err != nil {
		return Session{}, err
	}
	if active != nil {
		return *active, nil
	}
	latest, err := r.LatestSession()
	if err != nil {
		return Session{}, err
	}
	if latest != nil {
		return *latest, nil
	}
	return r.NewSession()
}
