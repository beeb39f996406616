package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbqueue/nbq/internal/models"
)

// SnapshotSource stages a source file into the session queue directory and
// returns the snapshot path. The worker only ever reads the snapshot, so
// later edits or deletes of the original cannot affect a queued run.
// Notebooks are stripped of outputs and execution counts; other sources are
// copied verbatim. A usable tag is appended to the filename stem.
func SnapshotSource(s Session, srcPath, tag string) (string, error) {
	if err := os.MkdirAll(s.QueueDir(), 0o755); err != nil {
		return "", fmt.Errorf("create queue directory: %w", err)
	}
	abs, err := filepath.Abs(srcPath)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(abs))
	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	name := stem + ext
	if t := models.SanitizeTag(tag); t != "" {
		name = stem + "_" + t + ext
	}
	dst := filepath.Join(s.QueueDir(), name)

	if ext == ".ipynb" {
		if err := copyNotebookCleared(abs, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	if err := copyFile(abs, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy snapshot: %w", err)
	}
	return out.Close()
}

// copyNotebookCleared copies an .ipynb document while emptying code cell
// outputs and execution counts, keeping queue snapshots small and diffable.
func copyNotebookCleared(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read notebook: %w", err)
	}
	var nb map[string]interface{}
	if err := json.Unmarshal(data, &nb); err != nil {
		return fmt.Errorf("parse notebook: %w", err)
	}
	if cells, ok := nb["cells"].([]interface{}); ok {
		for _, c := range cells {
			cell, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			if cell["cell_type"] == "code" {
				cell["outputs"] = []interface{}{}
				cell["execution_count"] = nil
			}
		}
	}
	cleared, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return fmt.Errorf("serialize notebook: %w", err)
	}
	if err := os.WriteFile(dst, cleared, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
