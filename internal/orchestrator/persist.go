package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/observability"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

// ResourceStore is the durable home of derived resources.
type ResourceStore interface {
	UpsertBatch(ctx context.Context, rows []*task.WorkflowResource) error
	Upsert(ctx context.Context, row *task.WorkflowResource) error
}

// resourcePersister writes resources in the background. Failures are logged and never reach
// the stream loop.
type resourcePersister struct {
	log     *logger.Logger
	store   ResourceStore
	metrics *observability.Metrics
	wg      *sync.WaitGroup
	timeout time.Duration
}

func (p *resourcePersister) persist(rows []task.WorkflowResource) {
	if p == nil || p.store == nil || len(rows) == 0 {
		return
	}
	batch := make([]*task.WorkflowResource, 0, len(rows))
	for i := range rows {
		r := rows[i]
		batch = append(batch, &r)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("resource persistence panic", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.write(ctx, batch)
	}()
}

func (p *resourcePersister) write(ctx context.Context, batch []*task.WorkflowResource) {
	err := p.store.UpsertBatch(ctx, batch)
	if err == nil {
		p.metrics.AddResourceWrites("batch", "ok", len(batch))
		return
	}
	p.log.Warn("batch resource upsert failed; retrying one at a time", "error", err, "count", len(batch))

	failed := 0
	for _, row := range batch {
		if err := p.store.Upsert(ctx, row); err != nil {
			failed++
			p.log.Warn("resource upsert failed",
				"error", err,
				"session_id", row.SessionID,
				"dedup_key", row.DedupKey,
			)
		}
	}
	p.metrics.AddResourceWrites("single", "ok", len(batch)-failed)
	p.metrics.AddResourceWrites("single", "error", failed)
	if failed > 0 {
		p.log.Error("resource persistence incomplete", "failed", failed, "count", len(batch))
	}
}
