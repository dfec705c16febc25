package task

import "time"

type ExecutionStep struct {
	ID               string         `json:"id,omitempty"`
	StepNumber       int            `json:"step_number"`
	TotalSteps       int            `json:"total_steps"`
	Content          string         `json:"content"`
	DisplayText      string         `json:"display_text"`
	Status           StepStatus     `json:"status"`
	Category         StepCategory   `json:"category,omitempty"`
	ResourceType     string         `json:"resource_type,omitempty"`
	Results          []any          `json:"results,omitempty"`
	ExecutionDetails map[string]any `json:"execution_details,omitempty"`
	URLs             []string       `json:"urls,omitempty"`
	Files            []FileRef      `json:"files,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	IsCompleted      bool           `json:"is_completed"`
}

// Clone copies the step's slices and maps so callers cannot mutate reconciler state.
func (s ExecutionStep) Clone() ExecutionStep {
	out := s
	out.Results = append([]any(nil), s.Results...)
	out.URLs = append([]string(nil), s.URLs...)
	out.Files = append([]FileRef(nil), s.Files...)
	if s.ExecutionDetails != nil {
		out.ExecutionDetails = make(map[string]any, len(s.ExecutionDetails))
		for k, v := range s.ExecutionDetails {
			out.ExecutionDetails[k] = v
		}
	}
	return out
}
