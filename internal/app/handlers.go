package app

import (
	"strings"

	"github.com/yungbote/taskstream-backend/internal/config"
	apphttp "github.com/yungbote/taskstream-backend/internal/http"
	httpH "github.com/yungbote/taskstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/taskstream-backend/internal/http/middleware"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/envutil"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

func wireRouterConfig(log *logger.Logger, cfg *config.Config, clients Clients, services Services, metrics *observability.Metrics) apphttp.RouterConfig {
	log.Info("Wiring handlers...")

	var auth *httpMW.AuthMiddleware
	if strings.TrimSpace(cfg.Auth.JWTSecret) != "" {
		auth = httpMW.NewAuthMiddleware(log, cfg.Auth.JWTSecret)
	} else {
		log.Warn("JWT secret not set; /api is unauthenticated")
	}

	return apphttp.RouterConfig{
		Log:             log,
		ServiceName:     serviceName(),
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		Metrics:         metrics,
		AuthMiddleware:  auth,
		HealthHandler:   httpH.NewHealthHandler(clients.Upstream),
		TaskHandler:     httpH.NewTaskHandler(log, services.Orchestrator),
		ResourceHandler: httpH.NewResourceHandler(services.Resources),
		RealtimeHandler: httpH.NewRealtimeHandler(log, services.Registry, envutil.Duration("SSE_HEARTBEAT", 0)),
	}
}

func serviceName() string {
	return envutil.String("OTEL_SERVICE_NAME", "taskstream")
}
