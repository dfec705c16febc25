package task

import (
	"time"

	"github.com/google/uuid"
)

type TaskMessage struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     string     `json:"session_id"`
	Request       string     `json:"request"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	ProgressLines []string   `json:"progress_lines"`
	IsComplete    bool       `json:"is_complete"`
	IsStreaming   bool       `json:"is_streaming"`
	Error         string     `json:"error,omitempty"`
	Cancelled     bool       `json:"cancelled,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with m.
func (m TaskMessage) Clone() TaskMessage {
	out := m
	out.ProgressLines = append([]string(nil), m.ProgressLines...)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
