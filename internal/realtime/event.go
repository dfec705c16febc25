package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTaskStart         EventType = "task_start"
	EventCurrentStep       EventType = "current_step"
	EventStepDetails       EventType = "step_details"
	EventTaskComplete      EventType = "task_complete"
	EventResourcesUpdated  EventType = "resources_updated"
	EventReportReady       EventType = "report_ready"
	EventSuggestionsReady  EventType = "suggestions_ready"
	EventConnectionStopped EventType = "connection_stopped"
	EventSessionUpdated    EventType = "session_updated"
)

// Event is one Notification Bus payload. Subscribers filter by TaskID themselves.
type Event struct {
	SessionID string    `json:"session_id"`
	TaskID    uuid.UUID `json:"task_id"`
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}
