// Package index maintains a SQLite index of finalized runs across sessions
// for history reporting. The index is derived data, written best-effort at
// finalize time; the per-session state document stays the source of truth and
// the index can be deleted and rebuilt from it at any time.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nbqueue/nbq/internal/models"
	_ "modernc.org/sqlite"
)

// Filename is the index database name under the nbq home directory.
const Filename = "index.db"

// Index wraps the run index database.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index at dbPath and runs migrations.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ix := &Index{db: db}
	if err := ix.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return ix, nil
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		item_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		source TEXT NOT NULL,
		tag TEXT,
		status TEXT NOT NULL,
		success INTEGER,
		returncode INTEGER,
		run_dir TEXT,
		added_at TEXT NOT NULL,
		started_at TEXT,
		ended_at TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);
	`
	_, err := ix.db.Exec(schema)
	return err
}

// Entry is one finalized run as recorded in the index.
type Entry struct {
	ItemID     string
	SessionID  string
	Source     string
	Tag        string
	Status     models.Status
	Success    *bool
	Returncode *int
	RunDir     string
	AddedAt    string
	StartedAt  string
	EndedAt    string
	Error      string
}

// Record upserts a finalized queue item into the index.
func (ix *Index) Record(sessionID string, item models.QueueItem) error {
	var success, returncode sql.NullInt64
	if item.Success != nil {
		success = sql.NullInt64{Valid: true}
		if *item.Success {
			success.Int64 = 1
		}
	}
	if item.Returncode != nil {
		returncode = sql.NullInt64{Int64: int64(*item.Returncode), Valid: true}
	}

	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO runs
		 (item_id, session_id, source, tag, status, success, returncode, run_dir, added_at, started_at, ended_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, sessionID, filepath.Base(item.QueuePath), strDeref(item.Tag),
		string(item.Status), success, returncode, strDeref(item.RunDir),
		item.AddedAt, strDeref(item.StartedAt), strDeref(item.EndedAt), strDeref(item.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recently finalized runs, newest first. sessionID
// narrows to one session when non-empty.
func (ix *Index) Recent(sessionID string, limit int) ([]Entry, error) {
	query := `SELECT item_id, session_id, source, tag, status, success, returncode, run_dir, added_at, started_at, ended_at, error FROM runs`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY ended_at DESC, item_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var tag, runDir, startedAt, endedAt, errMsg sql.NullString
		var success, returncode sql.NullInt64
		if err := rows.Scan(&e.ItemID, &e.SessionID, &e.Source, &tag, &status, &success,
			&returncode, &runDir, &e.AddedAt, &startedAt, &endedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Status = models.Status(status)
		e.Tag = tag.String
		e.RunDir = runDir.String
		e.StartedAt = startedAt.String
		e.EndedAt = endedAt.String
		e.Error = errMsg.String
		if success.Valid {
			e.Success = models.BoolPtr(success.Int64 == 1)
		}
		if returncode.Valid {
			e.Returncode = models.IntPtr(int(returncode.Int64))
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
