package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskstream-backend/internal/config"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

type Server struct {
	Engine *gin.Engine

	log             *logger.Logger
	srv             *http.Server
	shutdownTimeout time.Duration
}

func NewServer(log *logger.Logger, httpCfg config.HTTPConfig, cfg RouterConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = log
	}
	engine := NewRouter(cfg)
	// Cancelling the base context on shutdown ends open event streams.
	base, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout.Duration,
		IdleTimeout:       httpCfg.IdleTimeout.Duration,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancelBase)
	return &Server{
		Engine:          engine,
		log:             log.With("component", "HTTPServer"),
		srv:             srv,
		shutdownTimeout: httpCfg.ShutdownTimeout.Duration,
	}
}

// Run serves until ctx ends, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown incomplete; closing", "error", err)
		_ = s.srv.Close()
	}
	return <-errCh
}
