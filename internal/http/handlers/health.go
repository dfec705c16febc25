package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type UpstreamProber interface {
	Healthy(ctx context.Context) bool
}

type HealthHandler struct {
	upstream UpstreamProber
}

func NewHealthHandler(upstream UpstreamProber) *HealthHandler {
	return &HealthHandler{upstream: upstream}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /readyz reports whether the task service answers its probe.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.upstream == nil {
		c.JSON(http.StatusOK, gin.H{"upstream": "unknown"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if !h.upstream.Healthy(ctx) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"upstream": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upstream": "up"})
}
