package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/taskstream-backend/internal/clients/gcs"
	"github.com/yungbote/taskstream-backend/internal/clients/upstream"
	"github.com/yungbote/taskstream-backend/internal/config"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime/bus"
	"github.com/yungbote/taskstream-backend/internal/services/report"
)

type Clients struct {
	Upstream   *upstream.Client
	ReportSink report.Sink
	EventBus   bus.Bus

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Upstream task service
	up, err := upstream.New(upstream.Options{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Timeout:       cfg.Upstream.Timeout.Duration,
		StreamTimeout: cfg.Upstream.StreamTimeout.Duration,
		MaxRetries:    cfg.Upstream.MaxRetries,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init upstream client: %w", err)
	}
	out.Upstream = up
	log.Info("Upstream client ready", "base_url", up.BaseURL())

	// Report sink
	switch cfg.Report.Sink {
	case "gcs":
		b, err := gcs.NewReportBucket(ctx, log, cfg.Report.Bucket, cfg.Report.PublicURLPrefix)
		if err != nil {
			return Clients{}, fmt.Errorf("init report bucket: %w", err)
		}
		out.ReportSink = b
		out.closers = append(out.closers, b.Close)
	default:
		out.ReportSink = &report.LocalSink{Dir: cfg.Report.Dir}
	}

	// Redis
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		out.EventBus = b
		out.closers = append(out.closers, b.Close)
	}

	return out, nil
}

func (c *Clients) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
