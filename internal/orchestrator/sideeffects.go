package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/realtime"
	"github.com/yungbote/taskstream-backend/internal/services/report"
)

var (
	ErrTaskNotComplete   = errors.New("task is not complete")
	ErrUpstreamUnhealthy = errors.New("upstream health probe failed")
	ErrTrivialContent    = errors.New("content too short for post-completion work")
)

// scheduleSideEffects runs the guarded side effects after the configured delay, detached from
// the stream. Caller holds s.mu.
func (o *Orchestrator) scheduleSideEffects(s *session, run *taskRun) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if d := o.opts.SideEffectDelay; d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-o.baseCtx.Done():
				o.log.Info("side effects skipped: orchestrator closing", "session_id", s.id, "task_id", run.id.String())
				return
			}
		}
		o.runSideEffects(s, run)
	}()
}

// RetrySideEffects re-runs whichever side effects the guard still allows for a completed task.
func (o *Orchestrator) RetrySideEffects(ctx context.Context, sessionID string, taskID uuid.UUID) (map[SideEffect]GuardStatus, error) {
	s := o.lookup(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	run := s.runByID(taskID)
	var complete, trivial bool
	if run != nil {
		msg := run.conv.Message()
		complete = msg.IsComplete && !msg.Cancelled && msg.Error == ""
		trivial = !run.conv.NonTrivial(o.opts.MinReportLength)
	}
	s.mu.Unlock()
	if run == nil {
		return nil, ErrTaskNotFound
	}
	if !complete {
		return nil, ErrTaskNotComplete
	}
	if trivial {
		return nil, ErrTrivialContent
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	o.runSideEffects(s, run)
	return run.guard.Snapshot(), nil
}

type sideEffectInput struct {
	msg       task.TaskMessage
	steps     []task.ExecutionStep
	resources []task.WorkflowResource
	trivial   bool
}

func (o *Orchestrator) runSideEffects(s *session, run *taskRun) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("side effect panic", "session_id", s.id, "task_id", run.id.String(), "panic", r)
		}
	}()

	s.mu.Lock()
	in := sideEffectInput{
		msg:       run.conv.Message(),
		steps:     run.steps.Steps(),
		resources: run.resources.Resources(),
		trivial:   !run.conv.NonTrivial(o.opts.MinReportLength),
	}
	s.mu.Unlock()

	if in.trivial {
		o.log.Debug("skipping side effects for trivial content", "session_id", s.id, "task_id", run.id.String())
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		o.guarded(s, run, SideEffectReport, func(ctx context.Context) error { return o.exportReport(ctx, s, run, in) })
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		o.guarded(s, run, SideEffectSuggestions, func(ctx context.Context) error { return o.generateSuggestions(ctx, s, run, in) })
	}()
	<-done
	<-done
}

func (o *Orchestrator) guarded(s *session, run *taskRun, effect SideEffect, fn func(ctx context.Context) error) {
	if !run.guard.Begin(effect) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			run.guard.Fail(effect, fmt.Errorf("panic: %v", r))
			o.log.Error("side effect panic", "effect", string(effect), "task_id", run.id.String(), "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.SideEffectTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "orchestrator.side_effect."+string(effect))
	span.SetAttributes(attribute.String("task.id", run.id.String()))
	defer span.End()

	start := time.Now()
	if err := fn(ctx); err != nil {
		serr := &SideEffectError{Effect: effect, Err: err}
		run.guard.Fail(effect, err)
		o.deps.Metrics.ObserveSideEffect(string(effect), "failed", time.Since(start))
		span.RecordError(serr)
		span.SetStatus(codes.Error, "side effect failed")
		o.log.Warn("side effect failed", "session_id", s.id, "task_id", run.id.String(), "error", serr)
		return
	}
	run.guard.Succeed(effect)
	o.deps.Metrics.ObserveSideEffect(string(effect), "done", time.Since(start))
}

func (o *Orchestrator) exportReport(ctx context.Context, s *session, run *taskRun, in sideEffectInput) error {
	if o.deps.Reports == nil {
		return errors.New("report exporter not configured")
	}
	loc, err := o.deps.Reports.Export(ctx, report.Input{
		SessionID:   s.id,
		TaskID:      run.id,
		Title:       in.msg.Title,
		Request:     in.msg.Request,
		Content:     in.msg.Content,
		Steps:       in.steps,
		Resources:   in.resources,
		GeneratedAt: o.opts.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	run.reportLocation = loc
	s.mu.Unlock()

	o.publish(ctx, s.id, run.id, realtime.EventReportReady, map[string]any{"location": loc})
	return nil
}

func (o *Orchestrator) generateSuggestions(ctx context.Context, s *session, run *taskRun, in sideEffectInput) error {
	if o.deps.Suggestions == nil {
		return errors.New("suggestion generator not configured")
	}
	if o.deps.Health != nil && !o.deps.Health.Healthy(ctx) {
		return ErrUpstreamUnhealthy
	}
	out, err := o.deps.Suggestions.GenerateSuggestions(ctx, task.SuggestionRequest{
		SessionID: s.id,
		TaskID:    run.id,
		Message:   in.msg.Content,
		UserText:  in.msg.Request,
		Context:   run.request.Context,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	run.suggestions = append([]string(nil), out...)
	s.mu.Unlock()

	o.publish(ctx, s.id, run.id, realtime.EventSuggestionsReady, map[string]any{"suggestions": out})
	return nil
}
