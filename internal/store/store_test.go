package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nbqueue/nbq/internal/models"
)

func newTestSession(t *testing.T) Session {
	t.Helper()
	s := Session{Root: filepath.Join(t.TempDir(), "2024-01-01T00-00-00Z")}
	if err := s.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return s
}

func TestEnsureLayout(t *testing.T) {
	s := newTestSession(t)
	for _, p := range []string{s.QueueDir(), s.LogsDir()} {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("%s should be a directory", p)
		}
	}
	if _, err := os.Stat(s.StatePath()); err != nil {
		t.Errorf("state document should exist after layout: %v", err)
	}
	st := Load(s)
	if len(st.Queue) != 0 || len(st.History) != 0 || st.Current != nil || st.StopRequested {
		t.Errorf("initial state should be empty, got %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestSession(t)

	item := models.NewQueueItem("/orig/a.py", filepath.Join(s.QueueDir(), "a.py"), "t1")
	st := models.DefaultState()
	st.Queue = append(st.Queue, item)
	st.StopRequested = true

	if err := Save(s, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(s)
	if !reflect.DeepEqual(st, got) {
		t.Errorf("round trip mismatch:\nsaved  %+v\nloaded %+v", st, got)
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	s := Session{Root: filepath.Join(t.TempDir(), "nope")}
	st := Load(s)
	if st == nil || len(st.Queue) != 0 {
		t.Fatal("missing document should load as default state")
	}

	s2 := newTestSession(t)
	if err := os.WriteFile(s2.StatePath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st2 := Load(s2)
	if st2 == nil || len(st2.Queue) != 0 || st2.Current != nil {
		t.Fatal("corrupt document should load as default state")
	}
}

func TestInterruptedWriteLeavesOldDocumentIntact(t *testing.T) {
	s := newTestSession(t)

	st := models.DefaultState()
	st.Queue = append(st.Queue, models.NewQueueItem("/a.py", "/q/a.py", ""))
	if err := Save(s, st); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-write: a temp file with garbage next to the
	// document, never renamed.
	if err := os.WriteFile(s.StatePath()+".tmp", []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Load(s)
	if len(got.Queue) != 1 || got.Queue[0].ID != st.Queue[0].ID {
		t.Error("previously saved document should remain readable")
	}
}

func TestAppendQueuePreservesFIFOOrder(t *testing.T) {
	s := newTestSession(t)

	var ids []string
	for i := 0; i < 5; i++ {
		item := models.NewQueueItem("/src.py", "/q/src.py", "")
		ids = append(ids, item.ID)
		if err := AppendQueue(s, item); err != nil {
			t.Fatalf("AppendQueue: %v", err)
		}
	}

	st := Load(s)
	if len(st.Queue) != 5 {
		t.Fatalf("expected 5 queued items, got %d", len(st.Queue))
	}
	for i, item := range st.Queue {
		if item.ID != ids[i] {
			t.Errorf("queue order broken at %d: got %s want %s", i, item.ID, ids[i])
		}
	}
}

func TestClearQueueLeavesCurrentAndHistory(t *testing.T) {
	s := newTestSession(t)

	cur := models.NewQueueItem("/cur.py", "/q/cur.py", "")
	done := models.NewQueueItem("/done.py", "/q/done.py", "")
	st := models.DefaultState()
	st.Queue = append(st.Queue, models.NewQueueItem("/p.py", "/q/p.py", ""))
	st.Current = &cur
	st.History = append(st.History, done)
	if err := Save(s, st); err != nil {
		t.Fatal(err)
	}

	if err := ClearQueue(s); err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	got := Load(s)
	if len(got.Queue) != 0 {
		t.Error("queue should be empty after clear")
	}
	if got.Current == nil || got.Current.ID != cur.ID {
		t.Error("clear must not touch current")
	}
	if len(got.History) != 1 || got.History[0].ID != done.ID {
		t.Error("clear must not touch history")
	}
}

func TestStateDocumentShape(t *testing.T) {
	s := newTestSession(t)
	data, err := os.ReadFile(s.StatePath())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state.json should be valid JSON: %v", err)
	}
	for _, key := range []string{"queue", "history", "current", "stop_requested"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("state.json missing key %q", key)
		}
	}
}
