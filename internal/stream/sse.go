package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

// ReadFrames reads Server-Sent-Events frames from r and hands each (event, data) pair to
// onFrame. A non-nil error from onFrame stops reading and is returned. io.EOF is not an error.
func ReadFrames(r io.Reader, onFrame func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		ev := eventName
		eventName = ""
		if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == doneSentinel {
			return nil
		}
		if onFrame == nil {
			return nil
		}
		return onFrame(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// Blank line ends the frame.
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, ":"):
			// Comment / heartbeat.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return flush()
		}
	}
}
