package main

import (
	"fmt"
	"time"

	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/procgroup"
	"github.com/nbqueue/nbq/internal/runs"
	"github.com/nbqueue/nbq/internal/store"
	"github.com/spf13/cobra"
)

var (
	clearYes       bool
	killGrace      time.Duration
	abortGrace     time.Duration
	abortKeepQueue bool
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all pending items from the queue",
	RunE:  runClear,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Ask the worker to stop after the current item finishes",
	RunE:  runCancel,
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Terminate the currently running item and drop the queue",
	RunE:  runKill,
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Kill the current item, drop the queue and stop the worker",
	RunE:  runAbort,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Skip the confirmation prompt")
	killCmd.Flags().DurationVar(&killGrace, "grace", 5*time.Second, "TERM-to-KILL grace window")
	abortCmd.Flags().DurationVar(&abortGrace, "grace", 5*time.Second, "TERM-to-KILL grace window")
	abortCmd.Flags().BoolVar(&abortKeepQueue, "no-clear-queue", false, "Keep pending items queued")
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	session, err := sessionForReporting(reg)
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("No sessions found.")
		return nil
	}

	st := store.Load(*session)
	if len(st.Queue) == 0 {
		fmt.Println("Queue is already empty.")
		return nil
	}
	if !clearYes {
		fmt.Printf("Remove %d pending item(s)? [y/N] ", len(st.Queue))
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}
	if err := store.ClearQueue(*session); err != nil {
		return err
	}
	fmt.Println("Queue cleared. The running item (if any) is unaffected.")
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	session, err := sessionForReporting(reg)
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("No sessions found.")
		return nil
	}

	st := store.Load(*session)
	st.StopRequested = true
	if err := store.Save(*session, st); err != nil {
		return err
	}
	fmt.Println("Stop requested. The worker will exit after the current item finishes.")
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	session, err := reg.ActiveSession()
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("No active worker; nothing to kill.")
		return nil
	}
	if err := killCurrent(*session, killGrace); err != nil {
		return err
	}
	if err := clearPending(*session); err != nil {
		return err
	}
	fmt.Println("Kill issued; queue cleared.")
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	session, err := sessionForReporting(reg)
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("No sessions found.")
		return nil
	}
	if err := killCurrent(*session, abortGrace); err != nil {
		return err
	}
	st := store.Load(*session)
	if !abortKeepQueue {
		st.Queue = []models.QueueItem{}
	}
	st.StopRequested = true
	if err := store.Save(*session, st); err != nil {
		return err
	}
	fmt.Println("Abort issued; worker will stop.")
	return nil
}

// killCurrent terminates the in-flight process group (if any) and marks the
// current item canceled so the worker's finalization sees the cancel even
// when the subprocess exits zero during the race.
func killCurrent(session store.Session, grace time.Duration) error {
	st := store.Load(session)
	cur := st.Current
	if cur == nil {
		return nil
	}

	pgid := 0
	if cur.PGID != nil {
		pgid = *cur.PGID
	} else if cur.PID != nil {
		if g, err := procgroup.Pgid(*cur.PID); err == nil {
			pgid = g
		}
	}

	cur.Status = models.StatusCanceled
	cur.Success = models.BoolPtr(false)
	cur.Error = models.StringPtr("killed by user")
	if err := store.Save(session, st); err != nil {
		return fmt.Errorf("mark current canceled: %w", err)
	}

	if pgid != 0 {
		if err := procgroup.TerminateWithGrace(pgid, grace); err != nil {
			return fmt.Errorf("terminate group %d: %w", pgid, err)
		}
	}

	if cur.RunDir != nil {
		ended := models.ISONow()
		if err := runs.WriteStatus(*cur.RunDir, runs.Status{
			StartedAt:  startedOrAdded(cur),
			EndedAt:    ended,
			Success:    false,
			Returncode: -1,
			Error:      cur.Error,
		}); err != nil {
			fmt.Printf("Could not write run status: %v\n", err)
		}
	}
	fmt.Printf("Terminated item %s\n", cur.ID)
	return nil
}

func clearPending(session store.Session) error {
	return store.ClearQueue(session)
}

func startedOrAdded(item *models.QueueItem) string {
	if item.StartedAt != nil {
		return *item.StartedAt
	}
	return item.AddedAt
}
