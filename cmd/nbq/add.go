package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/store"
	"github.com/spf13/cobra"
)

var (
	addTag   string
	addStart bool
)

var addCmd = &cobra.Command{
	Use:   "add [paths...]",
	Short: "Enqueue notebooks/scripts into the current session queue",
	Long: `Enqueue .ipynb or .py files. Notebooks are cleared of outputs before
snapshotting; scripts are copied as-is. The worker only ever reads the
snapshot, so the originals stay yours to edit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addTag, "tag", "", "Optional tag for tracking")
	addCmd.Flags().BoolVar(&addStart, "start", false, "Ensure a watch worker is running")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	session, err := reg.GetOrCreate()
	if err != nil {
		return err
	}

	added := 0
	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("Skipping missing path: %s\n", path)
			continue
		}
		snap, err := store.SnapshotSource(session, path, addTag)
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", path, err)
			continue
		}
		abs, _ := filepath.Abs(path)
		item := models.NewQueueItem(abs, snap, addTag)
		if err := store.AppendQueue(session, item); err != nil {
			return fmt.Errorf("enqueue %s: %w", path, err)
		}
		added++
		fmt.Printf("Enqueued %s -> %s\n", filepath.Base(path), filepath.Base(snap))
	}

	if addStart {
		ensureWorkerRunning(reg)
	}
	if added == 0 {
		return fmt.Errorf("no files enqueued")
	}
	return nil
}

// ensureWorkerRunning spawns a detached background watch worker when no live
// worker holds a session lock. Best-effort: add must succeed regardless.
func ensureWorkerRunning(reg store.Registry) {
	active, err := reg.ActiveSession()
	if err != nil || active != nil {
		return
	}
	exe, err := os.Executable()
	if err != nil {
		return
	}
	worker := exec.Command(exe, "run", "--watch")
	worker.Stdin = nil
	worker.Stdout = nil
	worker.Stderr = nil
	configureDetachedProc(worker)
	if err := worker.Start(); err != nil {
		fmt.Printf("Could not start background worker: %v\n", err)
		return
	}
	// Detach fully; the worker outlives this process.
	worker.Process.Release()
}
