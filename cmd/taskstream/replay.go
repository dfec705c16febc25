package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/taskstream-backend/internal/clients/upstream"
	"github.com/yungbote/taskstream-backend/internal/orchestrator"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime"
	"github.com/yungbote/taskstream-backend/internal/services/report"
)

type replayOptions struct {
	file      string
	message   string
	reportDir string
	format    string
	minLength int
	timeout   time.Duration
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded task stream and print the reconciled result",
	Long: `Feed a recorded Server-Sent-Events stream through the orchestrator as if it came from the
upstream service, then print the conversation, steps and resources it produced.

Examples:
  taskstream replay --file run.sse --message "Plan a trip to Lisbon"
  taskstream replay --file run.sse --message "..." --report-dir ./out --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(replayOpts.file) == "" {
			return errors.New("--file is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), replayOpts.timeout)
		defer cancel()
		return replay(ctx, replayOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.file, "file", "", "Recorded event stream to replay")
	f.StringVar(&replayOpts.message, "message", "Replayed task", "User request the stream answers")
	f.StringVar(&replayOpts.reportDir, "report-dir", "", "Write a report for the replayed task into this directory")
	f.StringVar(&replayOpts.format, "format", "markdown", "Report format (markdown, json, yaml)")
	f.IntVar(&replayOpts.minLength, "min-length", 50, "Minimum content length before a report is written")
	f.DurationVar(&replayOpts.timeout, "timeout", 30*time.Second, "Give up if the stream has not completed by then")
}

func replay(ctx context.Context, opts replayOptions, out io.Writer) error {
	log := logger.Nop()
	if verbose {
		l, err := logger.New("development")
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer l.Sync()
		log = l
	}

	registry := realtime.NewRegistry(log)
	deps := orchestrator.Deps{
		Log:       log,
		Transport: upstream.FileTransport{Path: opts.file},
		Bus:       registry,
	}
	if opts.reportDir != "" {
		svc, err := report.NewService(log, opts.format, &report.LocalSink{Dir: opts.reportDir})
		if err != nil {
			return err
		}
		deps.Reports = svc
	}

	o := orchestrator.New(deps, orchestrator.Options{MinReportLength: opts.minLength})
	sessionID := "replay-" + uuid.NewString()
	sub := registry.Subscribe(sessionID)
	defer sub.Close()

	if _, err := o.StartTask(ctx, sessionID, opts.message, nil); err != nil {
		o.Close()
		return err
	}
	werr := waitComplete(ctx, o, sub, sessionID)
	// Close waits for side effects scheduled by the completion.
	o.Close()
	if werr != nil {
		return werr
	}

	snap, err := o.Snapshot(sessionID)
	if err != nil {
		return err
	}
	return renderSnapshot(out, snap)
}

func waitComplete(ctx context.Context, o *orchestrator.Orchestrator, sub *realtime.Subscription, sessionID string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-sub.Events():
			if ev.Type == realtime.EventTaskComplete {
				return nil
			}
		case <-ticker.C:
			// Events can be dropped when the subscriber buffer fills.
			if snap, err := o.Snapshot(sessionID); err == nil && snap.Message != nil && snap.Message.IsComplete {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("replay did not complete: %w", ctx.Err())
		}
	}
}
