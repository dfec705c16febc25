package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/taskstream-backend/internal/http/handlers"
	httpMW "github.com/yungbote/taskstream-backend/internal/http/middleware"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	AuthMiddleware  *httpMW.AuthMiddleware
	HealthHandler   *httpH.HealthHandler
	TaskHandler     *httpH.TaskHandler
	ResourceHandler *httpH.ResourceHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "taskstream"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Tasks
	if cfg.TaskHandler != nil {
		api.POST("/sessions/:sessionID/tasks", cfg.TaskHandler.StartTask)
		api.DELETE("/sessions/:sessionID/tasks/current", cfg.TaskHandler.CancelTask)
		api.POST("/sessions/:sessionID/tasks/:taskID/side-effects", cfg.TaskHandler.RetrySideEffects)
		api.GET("/sessions/:sessionID", cfg.TaskHandler.GetSession)
		api.POST("/stop", cfg.TaskHandler.StopAll)
	}

	// Resources
	if cfg.ResourceHandler != nil {
		api.GET("/sessions/:sessionID/resources", cfg.ResourceHandler.ListResources)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/sessions/:sessionID/events", cfg.RealtimeHandler.SessionEvents)
	}

	return r
}
