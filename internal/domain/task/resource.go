package task

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResourceType string

const (
	ResourceWeb      ResourceType = "web"
	ResourceDatabase ResourceType = "database"
	ResourceAPI      ResourceType = "api"
	ResourceFile     ResourceType = "file"
	ResourceChart    ResourceType = "chart"
	ResourceGeneral  ResourceType = "general"
)

// WorkflowResource is an artifact derived from execution steps. Rows are unique per
// (session_id, dedup_key).
type WorkflowResource struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   string         `gorm:"column:session_id;type:text;not null;uniqueIndex:idx_workflow_resource_session_key,priority:1" json:"session_id"`
	TaskID      uuid.UUID      `gorm:"type:uuid;column:task_id;index" json:"task_id"`
	DedupKey    string         `gorm:"column:dedup_key;type:text;not null;uniqueIndex:idx_workflow_resource_session_key,priority:2" json:"dedup_key"`
	Type        ResourceType   `gorm:"column:type;type:text;not null;index" json:"type"`
	Title       string         `gorm:"column:title;type:text;not null;default:''" json:"title"`
	Description string         `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	StepID      string         `gorm:"column:step_id;type:text" json:"step_id"`
	Timestamp   time.Time      `gorm:"column:timestamp;not null" json:"timestamp"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkflowResource) TableName() string { return "workflow_resource" }
