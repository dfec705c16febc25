package bus

import (
	"context"

	"github.com/yungbote/taskstream-backend/internal/realtime"
)

// Bus fans events out across service instances.
type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

// Relay publishes through the Bus so every instance (this one included, via its forwarder)
// sees the event. When the bus is unavailable the event is delivered locally.
type Relay struct {
	Bus   Bus
	Local *realtime.Registry
	OnErr func(err error)
}

func (r *Relay) Publish(ctx context.Context, ev realtime.Event) {
	if r == nil {
		return
	}
	if r.Bus == nil {
		r.Local.Publish(ctx, ev)
		return
	}
	if err := r.Bus.Publish(ctx, ev); err != nil {
		if r.OnErr != nil {
			r.OnErr(err)
		}
		r.Local.Publish(ctx, ev)
	}
}
