// Package models defines the core domain types for nbq.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a queue item.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// QueueItem represents one unit of work. An item lives in exactly one of
// State.Queue, State.Current or State.History at any time and only ever moves
// queue -> current -> history.
type QueueItem struct {
	ID           string  `json:"id"`
	OriginalPath string  `json:"original_path"`
	QueuePath    string  `json:"queue_path"`
	AddedAt      string  `json:"added_at"`
	StartedAt    *string `json:"started_at"`
	EndedAt      *string `json:"ended_at"`
	Status       Status  `json:"status"`
	Tag          *string `json:"tag"`
	Success      *bool   `json:"success"`
	Returncode   *int    `json:"returncode"`
	RunDir       *string `json:"run_dir"`
	PID          *int    `json:"pid"`
	PGID         *int    `json:"pgid"`
	Error        *string `json:"error"`
}

// NewQueueItem builds a queued item for a staged snapshot.
func NewQueueItem(originalPath, queuePath, tag string) QueueItem {
	item := QueueItem{
		ID:           NewItemID(),
		OriginalPath: originalPath,
		QueuePath:    queuePath,
		AddedAt:      ISONow(),
		Status:       StatusQueued,
	}
	if t := SanitizeTag(tag); t != "" {
		item.Tag = &t
	}
	return item
}

// State is the durable per-session document. Queue is FIFO (index 0 is next),
// History is append-only, Current holds the single in-flight item.
type State struct {
	Queue         []QueueItem `json:"queue"`
	History       []QueueItem `json:"history"`
	Current       *QueueItem  `json:"current"`
	StopRequested bool        `json:"stop_requested"`
}

// DefaultState returns a freshly initialized empty state. Slices are non-nil
// so the document serializes with [] rather than null.
func DefaultState() *State {
	return &State{Queue: []QueueItem{}, History: []QueueItem{}}
}

// PopNext removes and returns the head of the queue, or nil if empty.
func (s *State) PopNext() *QueueItem {
	if len(s.Queue) == 0 {
		return nil
	}
	item := s.Queue[0]
	s.Queue = s.Queue[1:]
	return &item
}

// ISONow returns the current UTC time in ISO-8601, truncated to seconds for
// stable diffs.
func ISONow() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ParseISO parses the timestamps we write.
func ParseISO(ts string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", ts)
}

// NewSessionID returns a filesystem-safe timestamp id. Lexicographic order of
// session ids is chronological order.
func NewSessionID() string {
	return time.Now().UTC().Format("2006-01-02T15-04-05Z")
}

// NewItemID returns a timestamp-prefixed id with a random token so that items
// enqueued in the same second stay unique.
func NewItemID() string {
	return fmt.Sprintf("%s-%s", NewSessionID(), uuid.NewString()[:8])
}

var (
	unsafeTagChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)
	repeatedDashes = regexp.MustCompile(`-{2,}`)
)

// SanitizeTag reduces a user-supplied tag to a filesystem-safe token.
// Returns "" when nothing usable remains.
func SanitizeTag(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), " ", "-")
	tag = unsafeTagChars.ReplaceAllString(tag, "-")
	tag = repeatedDashes.ReplaceAllString(tag, "-")
	return strings.Trim(tag, "-")
}

// Pointer helpers for the nullable item fields.

func BoolPtr(v bool) *bool       { return &v }
func IntPtr(v int) *int          { return &v }
func StringPtr(v string) *string { return &v }
