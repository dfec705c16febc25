package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrUnknownType  = errors.New("unknown chunk type")
	ErrMissingField = errors.New("missing required field")
)

// DecodeError describes a frame that could not be turned into a chunk. Callers log it and
// drop the frame.
type DecodeError struct {
	Frame  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "decode error"
	}
	frame := e.Frame
	if len(frame) > 120 {
		frame = frame[:120] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v (frame=%q)", e.Reason, e.Err, frame)
	}
	return fmt.Sprintf("decode error: %s (frame=%q)", e.Reason, frame)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Decode turns one frame payload into a StreamChunk. When the payload carries no type, a
// specific SSE event name is used instead.
func Decode(event string, data []byte) (task.StreamChunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return task.StreamChunk{}, &DecodeError{Frame: string(data), Reason: "empty payload", Err: ErrEmptyFrame}
	}

	var chunk task.StreamChunk
	if err := json.Unmarshal(trimmed, &chunk); err != nil {
		return task.StreamChunk{}, &DecodeError{Frame: string(trimmed), Reason: "invalid json", Err: err}
	}

	chunk.Type = task.ChunkType(strings.ToLower(strings.TrimSpace(string(chunk.Type))))
	if chunk.Type == "" {
		ev := strings.ToLower(strings.TrimSpace(event))
		if ev != "" && ev != "message" {
			chunk.Type = task.ChunkType(ev)
		}
	}
	if chunk.Status != "" {
		chunk.Status = task.StepStatus(strings.ToLower(strings.TrimSpace(string(chunk.Status))))
	}

	if err := validate(chunk); err != nil {
		return task.StreamChunk{}, &DecodeError{Frame: string(trimmed), Reason: err.Error(), Err: err}
	}
	return chunk, nil
}

func validate(c task.StreamChunk) error {
	if !c.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, string(c.Type))
	}
	switch c.Type {
	case task.ChunkProgress:
		if c.Step <= 0 {
			return fmt.Errorf("%w: step", ErrMissingField)
		}
		if c.TotalSteps <= 0 {
			return fmt.Errorf("%w: totalSteps", ErrMissingField)
		}
		if strings.TrimSpace(c.Content) == "" && c.Status == "" {
			return fmt.Errorf("%w: content or status", ErrMissingField)
		}
		if c.Status != "" && !c.Status.Valid() {
			return fmt.Errorf("invalid status %q", string(c.Status))
		}
	case task.ChunkContent:
		if c.Content == "" {
			return fmt.Errorf("%w: content", ErrMissingField)
		}
	case task.ChunkError:
		if strings.TrimSpace(c.Error) == "" {
			return fmt.Errorf("%w: error", ErrMissingField)
		}
	case task.ChunkWorkflowCreated, task.ChunkWorkflowUpdated:
		if strings.TrimSpace(c.SessionID) == "" {
			return fmt.Errorf("%w: sessionId", ErrMissingField)
		}
	}
	return nil
}

// Encode serializes a chunk back to its wire form.
func Encode(c task.StreamChunk) ([]byte, error) {
	return json.Marshal(c)
}

// EncodeFrame renders a chunk as one SSE frame.
func EncodeFrame(c task.StreamChunk) ([]byte, error) {
	b, err := Encode(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(string(c.Type))
	buf.WriteString("\ndata: ")
	buf.Write(b)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
