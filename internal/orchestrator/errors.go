package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrEmptyMessage    = errors.New("task message is empty")
	ErrClosed          = errors.New("orchestrator closed")
)

// TransportError is a connection-level failure of the upstream stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	if e.Err == nil {
		return fmt.Sprintf("transport error: %s", e.Op)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UpstreamError is an explicit error chunk sent by the upstream.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream error"
	}
	return "upstream error: " + e.Message
}

// SideEffectError is a failed post-completion side effect. It is never shown as a task failure.
type SideEffectError struct {
	Effect SideEffect
	Err    error
}

func (e *SideEffectError) Error() string {
	if e == nil {
		return "side effect error"
	}
	return fmt.Sprintf("side effect %s failed: %v", e.Effect, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
