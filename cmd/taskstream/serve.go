package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/taskstream-backend/internal/app"
	"github.com/yungbote/taskstream-backend/internal/platform/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  `Load config (TASKSTREAM_CONFIG_PATH or ./config/config.yaml plus env overrides) and serve until SIGINT/SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := shutdown.NotifyContext(cmd.Context())
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	application, err := app.New(ctx)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer application.Close()

	application.Log.Info("taskstream starting", "version", app.Version, "env", application.Cfg.Env)
	if err := application.Run(ctx); err != nil {
		application.Log.Error("server exited", "error", err)
		return err
	}
	application.Log.Info("taskstream stopped")
	return nil
}
