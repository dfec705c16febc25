package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/taskstream-backend/internal/config"
	"github.com/yungbote/taskstream-backend/internal/data/db"
	"github.com/yungbote/taskstream-backend/internal/data/repos/resources"
	apphttp "github.com/yungbote/taskstream-backend/internal/http"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime"
)

var Version = "dev"

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	DB       *db.Service
	Metrics  *observability.Metrics
	Clients  Clients
	Services Services
	Server   *apphttp.Server

	shutdownTracing func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.shutdownTracing = observability.InitTracing(ctx, log, observability.TracingConfig{
		ServiceName: serviceName(),
		Environment: cfg.Env,
		Version:     Version,
	})
	a.Metrics = observability.NewMetrics()

	dbs, err := db.Open(cfg.Database, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = dbs
	repo := resources.NewWorkflowResourceRepo(dbs.DB(), log)

	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Services, err = wireServices(log, cfg, repo, a.Clients, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Server = apphttp.NewServer(log, cfg.HTTP, wireRouterConfig(log, cfg, a.Clients, a.Services, a.Metrics))
	return a, nil
}

// Run serves HTTP until ctx ends. Redis forwarding and metrics collection run alongside.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.EventBus != nil {
		registry := a.Services.Registry
		err := a.Clients.EventBus.StartForwarder(gctx, func(ev realtime.Event) {
			registry.Publish(gctx, ev)
		})
		if err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
		a.Log.Info("redis event forwarder started", "channel", a.Cfg.Redis.Channel)
	}
	a.Metrics.StartRedisCollector(gctx, a.Log, a.Cfg.Redis.Addr, 0)

	g.Go(func() error {
		return a.Server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		n := a.Services.Orchestrator.StopAll(context.Background())
		if n > 0 {
			a.Log.Info("stopped active task streams", "sessions", n)
		}
		return nil
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Orchestrator != nil {
		a.Services.Orchestrator.Close()
	}
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
