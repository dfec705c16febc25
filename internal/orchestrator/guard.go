package orchestrator

import (
	"sync"
)

type SideEffect string

const (
	SideEffectReport      SideEffect = "report"
	SideEffectSuggestions SideEffect = "suggestions"
)

type GuardState int

const (
	GuardNotStarted GuardState = iota
	GuardInFlight
	GuardDone
	GuardFailed
)

func (s GuardState) String() string {
	switch s {
	case GuardNotStarted:
		return "not_started"
	case GuardInFlight:
		return "in_flight"
	case GuardDone:
		return "done"
	case GuardFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s GuardState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// maxGuardAttempts is the first attempt plus one retry.
const maxGuardAttempts = 2

type GuardStatus struct {
	State     GuardState `json:"state"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
}

// CompletionGuard tracks each post-completion side effect of one task.
type CompletionGuard struct {
	mu      sync.Mutex
	records map[SideEffect]*GuardStatus
}

func NewCompletionGuard() *CompletionGuard {
	return &CompletionGuard{records: map[SideEffect]*GuardStatus{
		SideEffectReport:      {State: GuardNotStarted},
		SideEffectSuggestions: {State: GuardNotStarted},
	}}
}

func (g *CompletionGuard) record(e SideEffect) *GuardStatus {
	r, ok := g.records[e]
	if !ok {
		r = &GuardStatus{State: GuardNotStarted}
		g.records[e] = r
	}
	return r
}

// Begin claims the side effect. It succeeds from NotStarted, or from Failed while a retry
// remains.
func (g *CompletionGuard) Begin(e SideEffect) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.record(e)
	switch r.State {
	case GuardNotStarted:
	case GuardFailed:
		if r.Attempts >= maxGuardAttempts {
			return false
		}
	default:
		return false
	}
	r.State = GuardInFlight
	r.Attempts++
	return true
}

func (g *CompletionGuard) Succeed(e SideEffect) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.record(e)
	if r.State != GuardInFlight {
		return
	}
	r.State = GuardDone
	r.LastError = ""
}

func (g *CompletionGuard) Fail(e SideEffect, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.record(e)
	if r.State != GuardInFlight {
		return
	}
	r.State = GuardFailed
	if err != nil {
		r.LastError = err.Error()
	}
}

func (g *CompletionGuard) State(e SideEffect) GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record(e).State
}

func (g *CompletionGuard) Snapshot() map[SideEffect]GuardStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[SideEffect]GuardStatus, len(g.records))
	for k, v := range g.records {
		out[k] = *v
	}
	return out
}
