package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores a rendered report and returns where it can be fetched.
type Sink interface {
	Put(ctx context.Context, key string, contentType string, body []byte) (string, error)
}

// LocalSink writes reports under Dir.
type LocalSink struct {
	Dir string
}

func (s *LocalSink) Put(ctx context.Context, key string, _ string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		dir = "reports"
	}
	p := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, bytes.Clone(body), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize report: %w", err)
	}
	return p, nil
}
