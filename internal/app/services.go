package app

import (
	"fmt"

	"github.com/yungbote/taskstream-backend/internal/config"
	"github.com/yungbote/taskstream-backend/internal/data/repos/resources"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/orchestrator"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime"
	"github.com/yungbote/taskstream-backend/internal/realtime/bus"
	"github.com/yungbote/taskstream-backend/internal/services/report"
	"github.com/yungbote/taskstream-backend/internal/services/title"
)

type Services struct {
	Registry     *realtime.Registry
	Relay        *bus.Relay
	Reports      *report.Service
	Resources    *resources.Store
	Orchestrator *orchestrator.Orchestrator
}

func wireServices(log *logger.Logger, cfg *config.Config, repo resources.WorkflowResourceRepo, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	registry := realtime.NewRegistry(log)
	registry.UseMetrics(metrics)

	relayLog := log.With("component", "EventRelay")
	relay := &bus.Relay{
		Bus:   clients.EventBus,
		Local: registry,
		OnErr: func(err error) {
			relayLog.Warn("event bus publish failed; delivering locally", "error", err)
		},
	}

	reports, err := report.NewService(log, cfg.Report.Format, clients.ReportSink)
	if err != nil {
		return Services{}, fmt.Errorf("init report service: %w", err)
	}

	store := &resources.Store{Repo: repo}

	orch := orchestrator.New(orchestrator.Deps{
		Log:         log,
		Transport:   clients.Upstream,
		Health:      clients.Upstream,
		Suggestions: clients.Upstream,
		Reports:     reports,
		Resources:   store,
		Titles:      title.Deriver{},
		Bus:         relay,
		Metrics:     metrics,
	}, streamOptions(cfg))

	return Services{
		Registry:     registry,
		Relay:        relay,
		Reports:      reports,
		Resources:    store,
		Orchestrator: orch,
	}, nil
}

func streamOptions(cfg *config.Config) orchestrator.Options {
	return orchestrator.Options{
		CompletionGrace: cfg.Stream.CompletionGrace.Duration,
		SideEffectDelay: cfg.Stream.SideEffectDelay.Duration,
		IdleTimeout:     cfg.Stream.IdleTimeout.Duration,
		ReplaceWait:     cfg.Stream.ReplaceWait.Duration,
		MinReportLength: cfg.Report.MinLength,
	}
}
