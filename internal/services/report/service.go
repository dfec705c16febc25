package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

// Service renders reports and hands them to a sink.
type Service struct {
	log      *logger.Logger
	exporter Exporter
	sink     Sink
}

func NewService(log *logger.Logger, format string, sink Sink) (*Service, error) {
	if log == nil {
		log = logger.Nop()
	}
	if sink == nil {
		return nil, fmt.Errorf("report sink required")
	}
	exp, err := NewExporter(format)
	if err != nil {
		return nil, err
	}
	return &Service{
		log:      log.With("service", "ReportService"),
		exporter: exp,
		sink:     sink,
	}, nil
}

func (s *Service) Export(ctx context.Context, in Input) (string, error) {
	var buf bytes.Buffer
	if err := s.exporter.Export(in, &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	key := Key(in.SessionID, in.TaskID.String(), s.exporter.Extension())
	loc, err := s.sink.Put(ctx, key, s.exporter.ContentType(), buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	s.log.Info("report exported", "session_id", in.SessionID, "task_id", in.TaskID.String(), "location", loc, "bytes", buf.Len())
	return loc, nil
}

// Key is the object key of a task's report.
func Key(sessionID, taskID, ext string) string {
	return path.Join(safeSegment(sessionID), safeSegment(taskID)+"."+ext)
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
