package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/realtime"
	"github.com/yungbote/taskstream-backend/internal/services/report"
	"github.com/yungbote/taskstream-backend/internal/services/title"
)

var tracer = otel.Tracer("github.com/yungbote/taskstream-backend/internal/orchestrator")

type HealthProber interface {
	Healthy(ctx context.Context) bool
}

type SuggestionGenerator interface {
	GenerateSuggestions(ctx context.Context, req task.SuggestionRequest) ([]string, error)
}

type ReportExporter interface {
	Export(ctx context.Context, in report.Input) (string, error)
}

type TitleDeriver interface {
	Derive(text string) string
}

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event)
}

type Deps struct {
	Log         *logger.Logger
	Transport   Transport
	Health      HealthProber
	Suggestions SuggestionGenerator
	Reports     ReportExporter
	Resources   ResourceStore
	Titles      TitleDeriver
	Bus         Publisher
	// Metrics may be nil.
	Metrics *observability.Metrics
}

type Options struct {
	CompletionGrace time.Duration
	SideEffectDelay time.Duration
	IdleTimeout     time.Duration
	ReplaceWait     time.Duration
	MinReportLength int
	// SideEffectTimeout bounds each report/suggestion call.
	SideEffectTimeout time.Duration
	PersistTimeout    time.Duration
	Now               func() time.Time
}

func (o *Options) withDefaults() {
	if o.CompletionGrace < 0 {
		o.CompletionGrace = 0
	}
	if o.SideEffectDelay < 0 {
		o.SideEffectDelay = 0
	}
	if o.ReplaceWait <= 0 {
		o.ReplaceWait = 3 * time.Second
	}
	if o.MinReportLength <= 0 {
		o.MinReportLength = 50
	}
	if o.SideEffectTimeout <= 0 {
		o.SideEffectTimeout = 2 * time.Minute
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Orchestrator owns every session's connection and task state.
type Orchestrator struct {
	log  *logger.Logger
	deps Deps
	opts Options

	conns     *ConnectionManager
	persister *resourcePersister

	baseCtx  context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
	sessions map[string]*session
}

func New(deps Deps, opts Options) *Orchestrator {
	opts.withDefaults()
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Titles == nil {
		deps.Titles = title.Deriver{}
	}

	log := deps.Log.With("component", "Orchestrator")
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		log:      log,
		deps:     deps,
		opts:     opts,
		baseCtx:  ctx,
		stop:     stop,
		sessions: make(map[string]*session),
	}
	o.conns = &ConnectionManager{
		log:         log,
		transport:   deps.Transport,
		sink:        o,
		metrics:     deps.Metrics,
		idleTimeout: opts.IdleTimeout,
		replaceWait: opts.ReplaceWait,
	}
	o.persister = &resourcePersister{
		log:     log.With("component", "ResourcePersister"),
		store:   deps.Resources,
		metrics: deps.Metrics,
		wg:      &o.wg,
		timeout: opts.PersistTimeout,
	}
	return o
}

type StartResult struct {
	TaskID       uuid.UUID `json:"task_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
}

// StartTask supersedes the session's current connection (if any) and opens a new one.
func (o *Orchestrator) StartTask(ctx context.Context, sessionID string, message string, taskCtx map[string]any) (StartResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return StartResult{}, ErrSessionNotFound
	}
	if strings.TrimSpace(message) == "" {
		return StartResult{}, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return StartResult{}, ErrClosed
	}
	s, ok := o.sessions[sessionID]
	if !ok {
		s = &session{id: sessionID}
		o.sessions[sessionID] = s
	}
	o.wg.Add(1)
	o.mu.Unlock()

	now := o.opts.Now()
	req := task.TaskRequest{
		SessionID: sessionID,
		TaskID:    uuid.New(),
		Message:   message,
		Context:   taskCtx,
	}

	s.mu.Lock()
	prev := s.current
	if prev != nil {
		o.supersede(s, prev, now)
	}
	run := newTaskRun(req, o.titleFor(s, "", message), o.opts.Now)
	conn := newConnection(o.baseCtx, req, now)
	s.addRun(run)
	s.current = conn
	s.last = conn
	s.mu.Unlock()

	o.deps.Metrics.IncTask("started")
	o.log.Info("task started",
		"session_id", sessionID,
		"task_id", req.TaskID.String(),
		"connection_id", conn.id.String(),
		"superseded", prev != nil,
	)

	go func() {
		defer o.wg.Done()
		o.conns.Run(conn, prev)
	}()

	return StartResult{TaskID: req.TaskID, ConnectionID: conn.id}, nil
}

// supersede invalidates prev. Caller holds s.mu.
func (o *Orchestrator) supersede(s *session, prev *connection, now time.Time) {
	prev.transition(task.PhaseCancelling)
	prev.stopGrace()
	prev.cancel()
	if r := s.runByID(prev.taskID); r != nil {
		r.conv.Interrupt(now)
	}
	s.current = nil
}

// Cancel stops the session's connection and clears every loading flag in the session.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	s := o.lookup(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	o.cancelSession(ctx, s)
	return nil
}

// StopAll cancels every session.
func (o *Orchestrator) StopAll(ctx context.Context) int {
	o.mu.Lock()
	all := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()

	stopped := 0
	for _, s := range all {
		if o.cancelSession(ctx, s) {
			stopped++
		}
	}
	return stopped
}

func (o *Orchestrator) cancelSession(ctx context.Context, s *session) bool {
	now := o.opts.Now()
	var (
		stopped  bool
		taskID   uuid.UUID
		messages []task.TaskMessage
	)

	s.mu.Lock()
	if conn := s.current; conn != nil {
		conn.transition(task.PhaseCancelling)
		conn.stopGrace()
		conn.cancel()
		s.current = nil
		taskID = conn.taskID
		stopped = true
	}
	for _, r := range s.runs {
		if r.conv.Cancel(now) {
			messages = append(messages, r.conv.Message())
			stopped = true
		}
	}
	s.mu.Unlock()

	if !stopped {
		return false
	}
	o.deps.Metrics.IncTask("cancelled")
	o.log.Info("connections stopped", "session_id", s.id)
	o.publish(ctx, s.id, taskID, realtime.EventConnectionStopped, map[string]any{
		"messages": messages,
	})
	return true
}

func (o *Orchestrator) Snapshot(sessionID string) (Snapshot, error) {
	s := o.lookup(sessionID)
	if s == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Close stops every connection and waits for background work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) lookup(sessionID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[strings.TrimSpace(sessionID)]
}

func (o *Orchestrator) titleFor(s *session, chunkTitle string, request string) string {
	if t := strings.TrimSpace(chunkTitle); t != "" {
		return t
	}
	if t := strings.TrimSpace(s.meta.Title); t != "" {
		return t
	}
	return o.deps.Titles.Derive(request)
}

func (o *Orchestrator) publish(ctx context.Context, sessionID string, taskID uuid.UUID, typ realtime.EventType, data any) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(ctx, realtime.Event{
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      typ,
		Data:      data,
		At:        o.opts.Now().UTC(),
	})
}

// onChunk applies one decoded chunk. Chunks from a connection that is no longer current are
// discarded.
func (o *Orchestrator) onChunk(conn *connection, c task.StreamChunk) {
	s := o.lookup(conn.sessionID)
	if s == nil {
		return
	}
	now := o.opts.Now()
	var events []realtime.Event
	emit := func(typ realtime.EventType, data any) {
		events = append(events, realtime.Event{SessionID: s.id, TaskID: conn.taskID, Type: typ, Data: data, At: now.UTC()})
	}

	s.mu.Lock()
	if s.current != conn || conn.terminating() {
		s.mu.Unlock()
		o.log.Debug("discarding chunk from stale connection",
			"session_id", s.id, "connection_id", conn.id.String(), "type", string(c.Type))
		return
	}
	run := s.runByID(conn.taskID)
	if run == nil {
		s.mu.Unlock()
		return
	}
	conn.hasReceivedData = true

	ensureStarted := func(chunkTitle string) {
		if conn.phase == task.PhaseOpening {
			conn.transition(task.PhaseStreaming)
		}
		if !run.conv.Started() && run.conv.Start(o.titleFor(s, chunkTitle, run.request.Message)) {
			emit(realtime.EventTaskStart, map[string]any{"message": run.conv.Message()})
		}
	}

	switch {
	case c.Type.IsSessionEvent():
		changed := false
		if t := strings.TrimSpace(c.Title); t != "" && t != s.meta.Title {
			s.meta.Title = t
			changed = true
		}
		if d := strings.TrimSpace(c.Description); d != "" && d != s.meta.Description {
			s.meta.Description = d
			changed = true
		}
		if changed {
			emit(realtime.EventSessionUpdated, map[string]any{"meta": s.meta, "upstream_session_id": c.SessionID})
		}

	case c.Type == task.ChunkStart:
		ensureStarted(c.Title)

	case c.Type == task.ChunkProgress:
		ensureStarted("")
		upd := run.steps.Apply(c)
		if !upd.Changed {
			break
		}
		run.conv.Progress(upd.Key, upd.Step)
		emit(realtime.EventCurrentStep, map[string]any{
			"step_key":     upd.Key,
			"step_number":  upd.Step.StepNumber,
			"total_steps":  upd.Step.TotalSteps,
			"status":       upd.Step.Status,
			"display_text": upd.Step.DisplayText,
		})
		emit(realtime.EventStepDetails, map[string]any{"step_key": upd.Key, "step": upd.Step})

		stepID := upd.Step.ID
		if stepID == "" {
			stepID = upd.Key
		}
		if changed := run.resources.Upsert(SynthesizeResources(c, stepID, now)); len(changed) > 0 {
			emit(realtime.EventResourcesUpdated, map[string]any{"resources": changed})
			o.persister.persist(changed)
		}

	case c.Type == task.ChunkContent:
		ensureStarted("")
		if run.conv.Content(c.Content) {
			emit(realtime.EventStepDetails, map[string]any{"content": run.conv.Message().Content})
		}

	case c.Type == task.ChunkComplete:
		conn.hasCompleted = true
		if !conn.transition(task.PhaseCompleting) {
			break
		}
		if !run.conv.Started() {
			run.conv.Start(o.titleFor(s, c.Title, run.request.Message))
		}
		run.conv.Complete(now)
		o.deps.Metrics.IncTask("completed")
		emit(realtime.EventTaskComplete, map[string]any{"message": run.conv.Message(), "steps": run.steps.Steps()})
		o.scheduleSideEffects(s, run)
		conn.grace = time.AfterFunc(o.opts.CompletionGrace, conn.cancel)

	case c.Type == task.ChunkError:
		conn.transition(task.PhaseErroring)
		uerr := &UpstreamError{Message: strings.TrimSpace(c.Error)}
		if run.conv.Fail(uerr.Message, now) {
			o.deps.Metrics.IncTask("failed")
			emit(realtime.EventTaskComplete, map[string]any{"message": run.conv.Message(), "error": uerr.Message})
		}
		o.log.Warn("upstream reported an error", "session_id", s.id, "task_id", run.id.String(), "error", uerr)
		conn.cancel()

	case c.Type == task.ChunkResourceUpdate:
		emit(realtime.EventResourcesUpdated, map[string]any{"resources": run.resources.Resources()})
	}
	s.mu.Unlock()

	if o.deps.Bus == nil {
		return
	}
	pubCtx := context.WithoutCancel(conn.ctx)
	for _, ev := range events {
		o.deps.Bus.Publish(pubCtx, ev)
	}
}

// onEnd settles a connection whose loop exited. err is a *TransportError, or nil when the
// connection's context ended.
func (o *Orchestrator) onEnd(conn *connection, err error) {
	s := o.lookup(conn.sessionID)
	if s == nil {
		return
	}
	now := o.opts.Now()
	var ev *realtime.Event

	s.mu.Lock()
	run := s.runByID(conn.taskID)
	current := s.current == conn
	log := o.log.With("session_id", s.id, "connection_id", conn.id.String())

	switch conn.phase {
	case task.PhaseCompleting, task.PhaseErroring, task.PhaseCancelling:
		// Already settled by the chunk or the cancel that got us here.
	default:
		switch {
		case !current:
		case err != nil && !conn.hasReceivedData && !conn.hasCompleted:
			conn.transition(task.PhaseErroring)
			log.Warn("stream failed before any data was received", "error", err)
			if run != nil && run.conv.Fail(NoticeTransportFailed, now) {
				o.deps.Metrics.IncTask("failed")
				ev = &realtime.Event{SessionID: s.id, TaskID: conn.taskID, Type: realtime.EventTaskComplete,
					Data: map[string]any{"message": run.conv.Message(), "error": NoticeTransportFailed}}
			}
		default:
			if err != nil {
				log.Info("stream ended after data; treating as finished", "error", err)
			}
			if run != nil && run.conv.Interrupt(now) {
				o.deps.Metrics.IncTask("interrupted")
				ev = &realtime.Event{SessionID: s.id, TaskID: conn.taskID, Type: realtime.EventTaskComplete,
					Data: map[string]any{"message": run.conv.Message()}}
			}
		}
	}
	conn.stopGrace()
	conn.transition(task.PhaseClosed)
	if current {
		s.current = nil
	}
	s.mu.Unlock()

	log.Debug("connection closed")
	if ev != nil && o.deps.Bus != nil {
		ev.At = now.UTC()
		o.deps.Bus.Publish(context.Background(), *ev)
	}
}
