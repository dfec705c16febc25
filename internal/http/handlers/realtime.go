package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskstream-backend/internal/http/response"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime"
)

type RealtimeHandler struct {
	log       *logger.Logger
	registry  *realtime.Registry
	heartbeat time.Duration
}

func NewRealtimeHandler(log *logger.Logger, registry *realtime.Registry, heartbeat time.Duration) *RealtimeHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), registry: registry, heartbeat: heartbeat}
}

// GET /api/sessions/:sessionID/events
func (h *RealtimeHandler) SessionEvents(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionID"))
	if sessionID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_session_id", errors.New("missing session id"))
		return
	}
	sub := h.registry.Subscribe(sessionID)
	defer sub.Close()

	h.log.Info("event stream open", "session_id", sessionID, "subscription_id", sub.ID.String())
	realtime.ServeSSE(c.Writer, c.Request, sub, h.heartbeat, h.log)
	h.log.Info("event stream closed", "session_id", sessionID, "subscription_id", sub.ID.String())
}
