package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleNotebook = `{
 "cells": [
  {
   "cell_type": "code",
   "execution_count": 7,
   "outputs": [{"output_type": "stream", "text": ["hello\n"]}],
   "source": ["print('hello')"]
  },
  {
   "cell_type": "markdown",
   "source": ["# Title"]
  }
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestSnapshotScriptVerbatim(t *testing.T) {
	s := newTestSession(t)
	src := filepath.Join(t.TempDir(), "train.py")
	if err := os.WriteFile(src, []byte("print('x')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := SnapshotSource(s, src, "")
	if err != nil {
		t.Fatalf("SnapshotSource: %v", err)
	}
	if filepath.Dir(snap) != s.QueueDir() {
		t.Errorf("snapshot should live in the queue dir, got %s", snap)
	}
	if filepath.Base(snap) != "train.py" {
		t.Errorf("untagged snapshot keeps the stem, got %s", filepath.Base(snap))
	}
	data, err := os.ReadFile(snap)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "print('x')\n" {
		t.Error("script snapshot should be a verbatim copy")
	}
}

func TestSnapshotTagSuffix(t *testing.T) {
	s := newTestSession(t)
	src := filepath.Join(t.TempDir(), "train.py")
	os.WriteFile(src, []byte("pass\n"), 0o644)

	snap, err := SnapshotSource(s, src, "run one!")
	if err != nil {
		t.Fatalf("SnapshotSource: %v", err)
	}
	if filepath.Base(snap) != "train_run-one.py" {
		t.Errorf("tag should suffix the stem sanitized, got %s", filepath.Base(snap))
	}
}

func TestSnapshotNotebookClearsOutputs(t *testing.T) {
	s := newTestSession(t)
	src := filepath.Join(t.TempDir(), "analysis.ipynb")
	if err := os.WriteFile(src, []byte(sampleNotebook), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := SnapshotSource(s, src, "")
	if err != nil {
		t.Fatalf("SnapshotSource: %v", err)
	}
	data, err := os.ReadFile(snap)
	if err != nil {
		t.Fatal(err)
	}
	var nb map[string]interface{}
	if err := json.Unmarshal(data, &nb); err != nil {
		t.Fatalf("snapshot should stay valid JSON: %v", err)
	}
	cells := nb["cells"].([]interface{})
	code := cells[0].(map[string]interface{})
	if outs, ok := code["outputs"].([]interface{}); !ok || len(outs) != 0 {
		t.Errorf("code cell outputs should be cleared, got %v", code["outputs"])
	}
	if code["execution_count"] != nil {
		t.Errorf("execution_count should be null, got %v", code["execution_count"])
	}
	md := cells[1].(map[string]interface{})
	if md["cell_type"] != "markdown" {
		t.Error("markdown cell should survive untouched")
	}
}

func TestSnapshotMissingSource(t *testing.T) {
	s := newTestSession(t)
	if _, err := SnapshotSource(s, filepath.Join(t.TempDir(), "ghost.py"), ""); err == nil {
		t.Error("snapshotting a missing source should fail")
	}
}
