package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/http/response"
)

type ResourceLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]*task.WorkflowResource, error)
}

type ResourceHandler struct {
	resources ResourceLister
}

func NewResourceHandler(resources ResourceLister) *ResourceHandler {
	return &ResourceHandler{resources: resources}
}

// GET /api/sessions/:sessionID/resources
func (h *ResourceHandler) ListResources(c *gin.Context) {
	rows, err := h.resources.ListBySession(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_resources_failed", err)
		return
	}
	if rows == nil {
		rows = []*task.WorkflowResource{}
	}
	response.RespondOK(c, gin.H{"resources": rows})
}
