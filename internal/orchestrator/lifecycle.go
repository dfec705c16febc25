package orchestrator

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
	"github.com/yungbote/taskstream-backend/internal/stream"
)

var ErrIdleTimeout = errors.New("stream idle timeout")

// Transport opens the upstream event stream for a task.
type Transport interface {
	Open(ctx context.Context, req task.TaskRequest) (io.ReadCloser, error)
}

var phaseTransitions = map[task.Phase][]task.Phase{
	task.PhaseIdle:       {task.PhaseOpening, task.PhaseCancelling, task.PhaseClosed},
	task.PhaseOpening:    {task.PhaseStreaming, task.PhaseCompleting, task.PhaseErroring, task.PhaseCancelling, task.PhaseClosed},
	task.PhaseStreaming:  {task.PhaseCompleting, task.PhaseErroring, task.PhaseCancelling, task.PhaseClosed},
	task.PhaseCompleting: {task.PhaseCancelling, task.PhaseClosed},
	task.PhaseErroring:   {task.PhaseCancelling, task.PhaseClosed},
	task.PhaseCancelling: {task.PhaseClosed},
}

func CanTransition(from, to task.Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// connection is one open (or opening) upstream stream. Fields other than ctx, cancel and done
// are guarded by the owning session's mutex.
type connection struct {
	id        uuid.UUID
	sessionID string
	taskID    uuid.UUID
	request   task.TaskRequest

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	phase           task.Phase
	hasReceivedData bool
	hasCompleted    bool
	openedAt        time.Time
	grace           *time.Timer
}

func newConnection(parent context.Context, req task.TaskRequest, now time.Time) *connection {
	ctx, cancel := context.WithCancel(parent)
	c := &connection{
		id:        uuid.New(),
		sessionID: req.SessionID,
		taskID:    req.TaskID,
		request:   req,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		phase:     task.PhaseIdle,
		openedAt:  now.UTC(),
	}
	c.transition(task.PhaseOpening)
	return c
}

func (c *connection) transition(to task.Phase) bool {
	if !CanTransition(c.phase, to) {
		return false
	}
	c.phase = to
	return true
}

// terminating reports whether the connection should ignore further chunks.
func (c *connection) terminating() bool {
	switch c.phase {
	case task.PhaseErroring, task.PhaseCancelling, task.PhaseClosed:
		return true
	default:
		return false
	}
}

func (c *connection) stopGrace() {
	if c.grace != nil {
		c.grace.Stop()
	}
}

func (c *connection) state() task.ConnectionState {
	return task.ConnectionState{
		ConnectionID:    c.id,
		Phase:           c.phase,
		HasReceivedData: c.hasReceivedData,
		HasCompleted:    c.hasCompleted,
		OpenedAt:        c.openedAt,
	}
}

// connectionSink receives everything a connection produces. Calls for one connection are
// sequential.
type connectionSink interface {
	onChunk(conn *connection, chunk task.StreamChunk)
	onEnd(conn *connection, err error)
}

// ConnectionManager runs the consumer loop of each connection.
type ConnectionManager struct {
	log         *logger.Logger
	transport   Transport
	sink        connectionSink
	metrics     *observability.Metrics
	idleTimeout time.Duration
	replaceWait time.Duration
}

type frame struct {
	event string
	data  string
}

// Run consumes conn until its context ends or the stream does. prev, when set, is the
// connection conn superseded; Run waits (bounded) for it to exit before opening.
func (m *ConnectionManager) Run(conn *connection, prev *connection) {
	defer close(conn.done)
	defer conn.cancel()

	ctx, span := tracer.Start(conn.ctx, "orchestrator.connection")
	span.SetAttributes(
		attribute.String("connection.id", conn.id.String()),
		attribute.String("task.id", conn.taskID.String()),
	)
	defer span.End()

	log := m.log.With("connection_id", conn.id.String(), "session_id", conn.sessionID)

	if prev != nil {
		wait := time.NewTimer(m.replaceWait)
		select {
		case <-prev.done:
		case <-wait.C:
			log.Warn("superseded connection did not exit in time", "previous_connection_id", prev.id.String())
		case <-ctx.Done():
		}
		wait.Stop()
	}
	if ctx.Err() != nil {
		m.sink.onEnd(conn, nil)
		return
	}

	body, err := m.transport.Open(ctx, conn.request)
	if err != nil {
		if ctx.Err() != nil {
			m.sink.onEnd(conn, nil)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		m.sink.onEnd(conn, &TransportError{Op: "open", Err: err})
		return
	}
	defer body.Close()

	frames := make(chan frame)
	readErr := make(chan error, 1)
	go func() {
		readErr <- stream.ReadFrames(body, func(event, data string) error {
			select {
			case frames <- frame{event: event, data: data}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if m.idleTimeout > 0 {
		idleTimer = time.NewTimer(m.idleTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			m.sink.onEnd(conn, nil)
			return

		case f := <-frames:
			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(m.idleTimeout)
			}
			chunk, err := stream.Decode(f.event, []byte(f.data))
			if err != nil {
				m.metrics.IncFrameDropped()
				log.Warn("dropping undecodable frame", "error", err)
				continue
			}
			m.metrics.IncChunk(string(chunk.Type))
			m.sink.onChunk(conn, chunk)

		case err := <-readErr:
			if ctx.Err() != nil {
				m.sink.onEnd(conn, nil)
				return
			}
			if err == nil {
				err = io.EOF
			}
			m.sink.onEnd(conn, &TransportError{Op: "read", Err: err})
			return

		case <-idle:
			m.sink.onEnd(conn, &TransportError{Op: "idle", Err: ErrIdleTimeout})
			return
		}
	}
}
