package main

import (
	"github.com/nbqueue/nbq/internal/config"
	"github.com/nbqueue/nbq/internal/store"
	"github.com/nbqueue/nbq/internal/tui"
	"github.com/spf13/cobra"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live monitor for the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		return tui.New(store.Registry{Home: cfg.Home}).Run()
	},
}
