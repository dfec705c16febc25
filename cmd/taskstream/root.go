package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/taskstream-backend/internal/app"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "taskstream",
	Short: "Stream task executions from the upstream task service",
	Long: `taskstream runs the task orchestration API: it opens streaming task runs against the
upstream service, reconciles their progress into a conversation, and fans updates out to
clients over Server-Sent Events.

Quick Start:
  taskstream serve                                  # Start the HTTP API
  taskstream replay --file run.sse --message "..."  # Replay a recorded stream offline`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(serveCmd, replayCmd)
}
