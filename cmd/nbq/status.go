package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/pidlock"
	"github.com/nbqueue/nbq/internal/store"
	"github.com/nbqueue/nbq/internal/tui"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current session status (running and queued items)",
	RunE:  runStatus,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List all sessions",
	RunE:  runSessions,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output machine-readable JSON")
}

// sessionForReporting prefers the active session and falls back to the
// latest one, so status keeps working after the worker exits.
func sessionForReporting(reg store.Registry) (*store.Session, error) {
	active, err := reg.ActiveSession()
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}
	return reg.LatestSession()
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	var workerPID *int
	if pid, ok := pidlock.ReadPID(session.LockPath()); ok {
		workerPID = &pid
	}

	if statusJSON {
		out := struct {
			Version   string `json:"version"`
			Session   string `json:"session"`
			WorkerPID *int   `json:"worker_pid"`
			*models.State
		}{version, session.Root, workerPID, st}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printBanner()
	subtitle := "no worker running"
	if workerPID != nil {
		subtitle = fmt.Sprintf("worker pid: %d", *workerPID)
	}
	fmt.Printf("session %s — %s\n\n", session.ID(), subtitle)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNOTEBOOK\tTAG\tSTATUS\tELAPSED")
	if cur := st.Current; cur != nil {
		started := cur.AddedAt
		if cur.StartedAt != nil {
			started = *cur.StartedAt
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			cur.ID, filepath.Base(cur.QueuePath), tagOrEmpty(cur.Tag),
			tui.FormatStatus(cur.Status), elapsedSince(started))
	}
	for _, qi := range st.Queue {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			qi.ID, filepath.Base(qi.QueuePath), tagOrEmpty(qi.Tag),
			tui.FormatStatus(qi.Status), elapsedSince(qi.AddedAt))
	}
	if st.Current == nil && len(st.Queue) == 0 {
		fmt.Fprintln(w, "-\t-\t-\t-\t-")
	}
	return w.Flush()
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	reg := store.Registry{Home: cfg.Home}
	sessions, err := reg.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tQUEUED\tHISTORY\tWORKER")
	for _, s := range sessions {
		st := store.Load(s)
		workerCol := ""
		if pid, ok := pidlock.ReadPID(s.LockPath()); ok && pidlock.Alive(pid) {
			workerCol = fmt.Sprintf("pid %d", pid)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.ID(), len(st.Queue), len(st.History), workerCol)
	}
	return w.Flush()
}

func tagOrEmpty(tag *string) string {
	if tag == nil {
		return ""
	}
	return *tag
}

// humanDuration renders a compact duration like "1h 02m 03s" or "5m 10s".
func humanDuration(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// elapsedSince renders the time since an ISO timestamp we wrote, or "?" when
// the timestamp is unparsable.
func elapsedSince(ts string) string {
	parsed, err := models.ParseISO(ts)
	if err != nil {
		return "?"
	}
	return humanDuration(time.Now().UTC().Sub(parsed))
}
