package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/index"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/tui"
	"github.com/spf13/cobra"
)

var (
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished runs across sessions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "Limit to one session id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	ix, err := index.Open(filepath.Join(cfg.Home, index.Filename))
	if err != nil {
		return fmt.Errorf("open run index: %w", err)
	}
	defer ix.Close()

	entries, err := ix.Recent(historySession, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No finished runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tSESSION\tSOURCE\tTAG\tSTATUS\tRC\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.EndedAt, e.SessionID, e.Source, e.Tag,
			tui.FormatStatus(e.Status), rcString(e.Returncode),
			runDuration(e.StartedAt, e.EndedAt))
	}
	return w.Flush()
}

func rcString(rc *int) string {
	if rc == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rc)
}

func runDuration(started, ended string) string {
	s, err := models.ParseISO(started)
	if err != nil {
		return "?"
	}
	e, err := models.ParseISO(ended)
	if err != nil {
		return "?"
	}
	return humanDuration(e.Sub(s))
}
