package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// barbequeue vibes, one hot run at a time
const banner = `
        _
  _ __ | |__   __ _
 | '_ \| '_ \ / _' |
 | | | | |_) | (_| |
 |_| |_|_.__/ \__, |
                 |_|
      ( ( (   ) ) )
   one hot run at a time
`

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	versionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
)

func printBanner() {
	fmt.Println(bannerStyle.Render(banner))
	fmt.Println(versionStyle.Render("nbq v" + version))
}

var rootCmd = &cobra.Command{
	Use:     "nbq",
	Short:   "nbq - serialize notebook runs through a local queue",
	Long:    `nbq queues notebooks and scripts and executes them one at a time, with durable on-disk state, crash-safe locking and graceful cancellation.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		printBanner()
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(topCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
