package task

import (
	"encoding/json"
	"strings"
	"time"
)

type ChunkType string

const (
	ChunkSessionEvent    ChunkType = "session-event"
	ChunkWorkflowCreated ChunkType = "workflow-created"
	ChunkWorkflowUpdated ChunkType = "workflow-updated"
	ChunkStart           ChunkType = "start"
	ChunkProgress        ChunkType = "progress"
	ChunkContent         ChunkType = "content"
	ChunkComplete        ChunkType = "complete"
	ChunkError           ChunkType = "error"
	ChunkResourceUpdate  ChunkType = "resource-update"
)

// IsSessionEvent reports whether the chunk only carries session metadata.
func (t ChunkType) IsSessionEvent() bool {
	switch t {
	case ChunkSessionEvent, ChunkWorkflowCreated, ChunkWorkflowUpdated:
		return true
	default:
		return false
	}
}

func (t ChunkType) Known() bool {
	switch t {
	case ChunkSessionEvent, ChunkWorkflowCreated, ChunkWorkflowUpdated,
		ChunkStart, ChunkProgress, ChunkContent, ChunkComplete, ChunkError, ChunkResourceUpdate:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StatusThinking  StepStatus = "thinking"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
)

// Rank orders statuses so that a step never regresses: thinking < running < completed.
func (s StepStatus) Rank() int {
	switch s {
	case StatusThinking:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

func (s StepStatus) Valid() bool { return s.Rank() > 0 }

type StepCategory string

const (
	CategoryAnalysis StepCategory = "analysis"
	CategoryStrategy StepCategory = "strategy"
	CategoryGeneral  StepCategory = "general"
	CategoryResult   StepCategory = "result"
	CategoryError    StepCategory = "error"
)

// FileRef is a file surfaced by a step. On the wire it is either a bare string (a name or
// path) or an object.
type FileRef struct {
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Path        string `json:"path,omitempty"`
	Size        int64  `json:"size,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

func (f *FileRef) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FileRef{Name: strings.TrimSpace(s)}
		return nil
	}
	type plain FileRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = FileRef(p)
	return nil
}

// MarshalJSON writes a name-only reference back as a bare string.
func (f FileRef) MarshalJSON() ([]byte, error) {
	if f.Name != "" && f == (FileRef{Name: f.Name}) {
		return json.Marshal(f.Name)
	}
	type plain FileRef
	return json.Marshal(plain(f))
}

// Locator is the most specific reference to the file's bytes.
func (f FileRef) Locator() string {
	for _, v := range []string{f.DownloadURL, f.URL, f.Path, f.Name} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// StreamChunk is one decoded event of the upstream task stream.
type StreamChunk struct {
	Type             ChunkType      `json:"type"`
	Content          string         `json:"content,omitempty"`
	Step             int            `json:"step,omitempty"`
	TotalSteps       int            `json:"totalSteps,omitempty"`
	StepID           string         `json:"stepId,omitempty"`
	Category         StepCategory   `json:"category,omitempty"`
	ResourceType     string         `json:"resourceType,omitempty"`
	Results          []any          `json:"results,omitempty"`
	ExecutionDetails map[string]any `json:"executionDetails,omitempty"`
	URLs             []string       `json:"urls,omitempty"`
	Files            []FileRef      `json:"files,omitempty"`
	Status           StepStatus     `json:"status,omitempty"`
	Error            string         `json:"error,omitempty"`
	SessionID        string         `json:"sessionId,omitempty"`
	Title            string         `json:"title,omitempty"`
	Description      string         `json:"description,omitempty"`
	Timestamp        *time.Time     `json:"timestamp,omitempty"`
}

// HasResources reports whether a progress chunk can yield derived resources.
func (c StreamChunk) HasResources() bool {
	return len(c.URLs) > 0 || len(c.Files) > 0 || len(c.ExecutionDetails) > 0 || len(c.Results) > 0
}
