package task

import "github.com/google/uuid"

// TaskRequest is what the upstream receives when a stream is opened.
type TaskRequest struct {
	SessionID string         `json:"sessionId"`
	TaskID    uuid.UUID      `json:"taskId"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

type SuggestionRequest struct {
	SessionID string         `json:"sessionId"`
	TaskID    uuid.UUID      `json:"taskId"`
	Message   string         `json:"message"`
	UserText  string         `json:"userText"`
	Context   map[string]any `json:"context,omitempty"`
}

// SessionMeta is what workflow session events tell us about the session.
type SessionMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}
