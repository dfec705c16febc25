package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

const defaultBuffer = 64

// Subscription receives the events of one session, or of every session when SessionID is
// empty. Close is idempotent.
type Subscription struct {
	ID        uuid.UUID
	SessionID string

	events chan Event
	done   chan struct{}
	once   sync.Once
	reg    *Registry
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	if s == nil || s.reg == nil {
		return
	}
	s.reg.unsubscribe(s)
}

// Registry is the per-session observer list behind the Notification Bus.
type Registry struct {
	mu      sync.RWMutex
	log     *logger.Logger
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	metrics *observability.Metrics
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		log:    log.With("component", "EventRegistry"),
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultBuffer,
	}
}

// UseMetrics counts dropped events. Call before the registry is shared.
func (r *Registry) UseMetrics(m *observability.Metrics) { r.metrics = m }

func (r *Registry) Subscribe(sessionID string) *Subscription {
	sessionID = strings.TrimSpace(sessionID)
	sub := &Subscription{
		ID:        uuid.New(),
		SessionID: sessionID,
		events:    make(chan Event, r.buffer),
		done:      make(chan struct{}),
		reg:       r,
	}

	r.mu.Lock()
	set, ok := r.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	r.log.Debug("subscriber added", "subscription_id", sub.ID, "session_id", sessionID)
	return sub
}

func (r *Registry) unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		r.mu.Lock()
		if set, ok := r.subs[sub.SessionID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(r.subs, sub.SessionID)
			}
		}
		close(sub.done)
		close(sub.events)
		r.mu.Unlock()
		r.log.Debug("subscriber removed", "subscription_id", sub.ID, "session_id", sub.SessionID)
	})
}

// Publish delivers ev to the session's subscribers and to the wildcard subscribers without
// blocking. A full subscriber buffer drops the event.
func (r *Registry) Publish(_ context.Context, ev Event) {
	if r == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	deliver := func(set map[*Subscription]struct{}) {
		for sub := range set {
			select {
			case sub.events <- ev:
			default:
				r.metrics.IncBusDrop()
				r.log.Warn("dropping event; subscriber buffer full",
					"subscription_id", sub.ID, "session_id", ev.SessionID, "type", ev.Type)
			}
		}
	}
	if ev.SessionID != "" {
		deliver(r.subs[ev.SessionID])
	}
	deliver(r.subs[""])
}

func (r *Registry) SubscriberCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[strings.TrimSpace(sessionID)])
}
