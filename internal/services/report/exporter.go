package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

// Input is everything a report is rendered from.
type Input struct {
	SessionID   string                  `json:"session_id"`
	TaskID      uuid.UUID               `json:"task_id"`
	Title       string                  `json:"title"`
	Request     string                  `json:"request"`
	Content     string                  `json:"content"`
	Steps       []task.ExecutionStep    `json:"steps"`
	Resources   []task.WorkflowResource `json:"resources"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Exporter renders a report in one format.
type Exporter interface {
	Export(in Input, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter creates an exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, json, yaml)", format)
	}
}
