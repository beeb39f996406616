package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nbqueue/nbq/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), Filename))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func finalizedItem(status models.Status, code int) models.QueueItem {
	item := models.NewQueueItem("/src/train.py", "/q/train.py", "t1")
	item.Status = status
	item.StartedAt = models.StringPtr(models.ISONow())
	item.EndedAt = models.StringPtr(models.ISONow())
	item.Returncode = models.IntPtr(code)
	item.Success = models.BoolPtr(status == models.StatusDone)
	item.RunDir = models.StringPtr("/sessions/s1/123-abcd")
	return item
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", Filename)
	ix, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ix.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file should exist: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	ix := newTestIndex(t)

	done := finalizedItem(models.StatusDone, 0)
	failed := finalizedItem(models.StatusFailed, 2)
	if err := ix.Record("sess-a", done); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ix.Record("sess-b", failed); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := ix.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.ItemID] = e
	}
	got := byID[failed.ID]
	if got.Status != models.StatusFailed {
		t.Errorf("status mismatch: %s", got.Status)
	}
	if got.Returncode == nil || *got.Returncode != 2 {
		t.Errorf("returncode mismatch: %v", got.Returncode)
	}
	if got.Success == nil || *got.Success {
		t.Errorf("failed run should have success=false, got %v", got.Success)
	}
	if got.Tag != "t1" || got.Source != "train.py" {
		t.Errorf("tag/source mismatch: %q %q", got.Tag, got.Source)
	}
}

func TestRecentFiltersBySession(t *testing.T) {
	ix := newTestIndex(t)
	ix.Record("sess-a", finalizedItem(models.StatusDone, 0))
	ix.Record("sess-b", finalizedItem(models.StatusDone, 0))

	entries, err := ix.Recent("sess-a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "sess-a" {
		t.Errorf("expected one sess-a entry, got %+v", entries)
	}
}

func TestRecordIsUpsert(t *testing.T) {
	ix := newTestIndex(t)
	item := finalizedItem(models.StatusCanceled, -1)
	if err := ix.Record("sess-a", item); err != nil {
		t.Fatal(err)
	}
	if err := ix.Record("sess-a", item); err != nil {
		t.Fatalf("re-recording the same item should not fail: %v", err)
	}
	entries, _ := ix.Recent("", 10)
	if len(entries) != 1 {
		t.Errorf("upsert should leave one row, got %d", len(entries))
	}
}
