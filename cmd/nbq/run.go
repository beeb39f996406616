package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/index"
	"github.com/nbqueue/nbq/internal/notebook"
	"github.com/nbqueue/nbq/internal/pidlock"
	"github.com/nbqueue/nbq/internal/store"
	"github.com/nbqueue/nbq/internal/worker"
	"github.com/spf13/cobra"
)

var (
	runTimeout int
	runWatch   bool
	runOnce    bool
	runPoll    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker loop to process queued items",
	RunE:  runWorker,
}

func init() {
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Per-cell timeout in seconds (0 = none)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Keep the worker alive to pick up new items")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Process a single item (if any) and exit")
	runCmd.Flags().DurationVar(&runPoll, "poll", time.Second, "Idle poll interval in watch mode")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}

	// A live worker already owns a session; do nothing.
	if active, err := reg.ActiveSession(); err != nil {
		return err
	} else if active != nil {
		if pid, ok := pidlock.ReadPID(active.LockPath()); ok {
			fmt.Printf("A worker is already running (pid %d). No action taken.\n", pid)
			return nil
		}
	}

	session, err := reg.GetOrCreate()
	if err != nil {
		return err
	}

	// The run index is derived data; a broken index never blocks execution.
	var ix *index.Index
	if opened, err := index.Open(filepath.Join(cfg.Home, index.Filename)); err != nil {
		log.Printf("run index unavailable: %v", err)
	} else {
		ix = opened
		defer ix.Close()
	}

	w := worker.New(session, notebook.Papermill{}, notebook.Jupytext{}, ix, worker.Options{
		TimeoutSec:   runTimeout,
		Watch:        runWatch,
		Once:         runOnce,
		PollInterval: runPoll,
		Kernel:       cfg.Kernel,
	})
	return w.Run()
}
