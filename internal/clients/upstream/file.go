package upstream

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

// FileTransport replays a recorded event stream from disk instead of calling the task service.
type FileTransport struct {
	Path string
}

func (f FileTransport) Open(ctx context.Context, _ task.TaskRequest) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open recorded stream: %w", err)
	}
	return fh, nil
}
