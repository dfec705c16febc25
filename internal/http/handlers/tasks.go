package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/taskstream-backend/internal/http/response"
	"github.com/yungbote/taskstream-backend/internal/orchestrator"
	"github.com/yungbote/taskstream-backend/internal/platform/apierr"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

// TaskService is the slice of the orchestrator the HTTP API drives.
type TaskService interface {
	StartTask(ctx context.Context, sessionID string, message string, taskCtx map[string]any) (orchestrator.StartResult, error)
	Cancel(ctx context.Context, sessionID string) error
	StopAll(ctx context.Context) int
	Snapshot(sessionID string) (orchestrator.Snapshot, error)
	RetrySideEffects(ctx context.Context, sessionID string, taskID uuid.UUID) (map[orchestrator.SideEffect]orchestrator.GuardStatus, error)
}

type TaskHandler struct {
	log   *logger.Logger
	tasks TaskService
}

func NewTaskHandler(log *logger.Logger, tasks TaskService) *TaskHandler {
	return &TaskHandler{log: log.With("handler", "TaskHandler"), tasks: tasks}
}

type startTaskReq struct {
	Message string         `json:"message" binding:"required"`
	Context map[string]any `json:"context"`
}

// POST /api/sessions/:sessionID/tasks
func (h *TaskHandler) StartTask(c *gin.Context) {
	var req startTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.tasks.StartTask(c.Request.Context(), c.Param("sessionID"), req.Message, req.Context)
	if err != nil {
		response.RespondAPIError(c, taskError(err))
		return
	}
	response.RespondAccepted(c, res)
}

// DELETE /api/sessions/:sessionID/tasks/current
func (h *TaskHandler) CancelTask(c *gin.Context) {
	if err := h.tasks.Cancel(c.Request.Context(), c.Param("sessionID")); err != nil {
		response.RespondAPIError(c, taskError(err))
		return
	}
	response.RespondOK(c, gin.H{"cancelled": true})
}

// POST /api/sessions/:sessionID/tasks/:taskID/side-effects
func (h *TaskHandler) RetrySideEffects(c *gin.Context) {
	taskID, err := uuid.Parse(strings.TrimSpace(c.Param("taskID")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	statuses, err := h.tasks.RetrySideEffects(c.Request.Context(), c.Param("sessionID"), taskID)
	if err != nil {
		response.RespondAPIError(c, taskError(err))
		return
	}
	response.RespondOK(c, gin.H{"side_effects": statuses})
}

// GET /api/sessions/:sessionID
func (h *TaskHandler) GetSession(c *gin.Context) {
	snap, err := h.tasks.Snapshot(c.Param("sessionID"))
	if err != nil {
		response.RespondAPIError(c, taskError(err))
		return
	}
	response.RespondOK(c, gin.H{"session": snap})
}

// POST /api/stop
func (h *TaskHandler) StopAll(c *gin.Context) {
	n := h.tasks.StopAll(c.Request.Context())
	h.log.Info("stop-all requested", "sessions", n)
	response.RespondOK(c, gin.H{"stopped": n})
}

func taskError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return apierr.New(http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return apierr.New(http.StatusNotFound, "task_not_found", err)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, orchestrator.ErrTaskNotComplete):
		return apierr.New(http.StatusConflict, "task_not_complete", err)
	case errors.Is(err, orchestrator.ErrTrivialContent):
		return apierr.New(http.StatusConflict, "trivial_content", err)
	case errors.Is(err, orchestrator.ErrClosed):
		return apierr.New(http.StatusServiceUnavailable, "shutting_down", err)
	default:
		return err
	}
}
