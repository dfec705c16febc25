package stream

import (
	"errors"
	"strings"
	"testing"
)

type frame struct{ event, data string }

func collect(t *testing.T, input string) []frame {
	t.Helper()
	var out []frame
	err := ReadFrames(strings.NewReader(input), func(event, data string) error {
		out = append(out, frame{event, data})
		return nil
	})
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	return out
}

func TestReadFramesBasic(t *testing.T) {
	input := ": heartbeat\n" +
		"event: progress\n" +
		"data: {\"a\":1}\n\n" +
		"data: line1\r\n" +
		"data: line2\r\n\r\n" +
		"data: [DONE]\n\n" +
		"data: {\"tail\":true}"

	got := collect(t, input)
	if len(got) != 3 {
		t.Fatalf("frames: want=3 got=%d (%+v)", len(got), got)
	}
	if got[0].event != "progress" || got[0].data != `{"a":1}` {
		t.Fatalf("frame0: %+v", got[0])
	}
	if got[1].event != "" || got[1].data != "line1\nline2" {
		t.Fatalf("frame1: %+v", got[1])
	}
	if got[2].data != `{"tail":true}` {
		t.Fatalf("unterminated trailing frame should flush at EOF: %+v", got[2])
	}
}

func TestReadFramesEventNameResetsPerFrame(t *testing.T) {
	got := collect(t, "event: start\ndata: {}\n\ndata: {}\n\n")
	if len(got) != 2 {
		t.Fatalf("frames: want=2 got=%d", len(got))
	}
	if got[1].event != "" {
		t.Fatalf("event name leaked into next frame: %q", got[1].event)
	}
}

func TestReadFramesCallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ReadFrames(strings.NewReader("data: 1\n\ndata: 2\n\n"), func(_, _ string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("want stop error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}
