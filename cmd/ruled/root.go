package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ruled",
	Short: "ruled - rule chain engine for oil field telemetry",
	Long: `ruled runs tenant-scoped rule chains over incoming telemetry and
event messages: graphs of filter, enrichment, transformation, and action
nodes wired by labeled edges.

The serve command starts the HTTP API; validate and catalog help while
authoring chain definitions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with SIGINT/SIGTERM wired to the context.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
}
