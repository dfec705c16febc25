package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

const maxSessionHistory = 20

// taskRun is the state of one task invocation. Guarded by the owning session's mutex, except
// guard which has its own lock.
type taskRun struct {
	id        uuid.UUID
	request   task.TaskRequest
	conv      *ConversationBuilder
	steps     *StepReconciler
	resources *ResourceAggregator
	guard     *CompletionGuard

	suggestions    []string
	reportLocation string
}

func newTaskRun(req task.TaskRequest, title string, now func() time.Time) *taskRun {
	msg := task.TaskMessage{
		ID:        req.TaskID,
		SessionID: req.SessionID,
		Request:   req.Message,
		Title:     title,
		CreatedAt: now().UTC(),
	}
	return &taskRun{
		id:        req.TaskID,
		request:   req,
		conv:      NewConversationBuilder(msg),
		steps:     NewStepReconciler(now),
		resources: NewResourceAggregator(req.SessionID, req.TaskID),
		guard:     NewCompletionGuard(),
	}
}

type session struct {
	id string

	mu      sync.Mutex
	meta    task.SessionMeta
	current *connection
	last    *connection
	runs    []*taskRun
}

func (s *session) run() *taskRun {
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

func (s *session) runByID(id uuid.UUID) *taskRun {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].id == id {
			return s.runs[i]
		}
	}
	return nil
}

func (s *session) addRun(r *taskRun) {
	s.runs = append(s.runs, r)
	if len(s.runs) > maxSessionHistory {
		s.runs = append([]*taskRun(nil), s.runs[len(s.runs)-maxSessionHistory:]...)
	}
}

// Snapshot is a deep copy of a session's state.
type Snapshot struct {
	SessionID      string                     `json:"session_id"`
	Meta           task.SessionMeta           `json:"meta"`
	Message        *task.TaskMessage          `json:"message,omitempty"`
	History        []task.TaskMessage         `json:"history"`
	Steps          []task.ExecutionStep       `json:"steps"`
	Resources      []task.WorkflowResource    `json:"resources"`
	Connection     *task.ConnectionState      `json:"connection,omitempty"`
	SideEffects    map[SideEffect]GuardStatus `json:"side_effects,omitempty"`
	Suggestions    []string                   `json:"suggestions,omitempty"`
	ReportLocation string                     `json:"report_location,omitempty"`
}

func (s *session) snapshot() Snapshot {
	out := Snapshot{
		SessionID: s.id,
		Meta:      s.meta,
		History:   make([]task.TaskMessage, 0, len(s.runs)),
		Steps:     []task.ExecutionStep{},
		Resources: []task.WorkflowResource{},
	}
	for _, r := range s.runs {
		out.History = append(out.History, r.conv.Message())
	}
	if r := s.run(); r != nil {
		msg := r.conv.Message()
		out.Message = &msg
		out.Steps = r.steps.Steps()
		out.Resources = r.resources.Resources()
		out.SideEffects = r.guard.Snapshot()
		out.Suggestions = append([]string(nil), r.suggestions...)
		out.ReportLocation = r.reportLocation
	}
	conn := s.current
	if conn == nil {
		conn = s.last
	}
	if conn != nil {
		st := conn.state()
		out.Connection = &st
	}
	return out
}
