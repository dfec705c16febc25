package resources

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/platform/dbctx"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

type WorkflowResourceRepo interface {
	UpsertBatch(dbc dbctx.Context, rows []*task.WorkflowResource) error
	Upsert(dbc dbctx.Context, row *task.WorkflowResource) error
	ListBySession(dbc dbctx.Context, sessionID string) ([]*task.WorkflowResource, error)
}

type workflowResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowResourceRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowResourceRepo {
	return &workflowResourceRepo{
		db:  db,
		log: baseLog.With("repo", "WorkflowResourceRepo"),
	}
}

// Rows collide on (session_id, dedup_key). The stored id and step_id are kept; the rest is
// refreshed.
var upsertOnKey = clause.OnConflict{
	Columns: []clause.Column{{Name: "session_id"}, {Name: "dedup_key"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"task_id", "type", "title", "description", "data", "timestamp", "updated_at",
	}),
}

func (r *workflowResourceRepo) UpsertBatch(dbc dbctx.Context, rows []*task.WorkflowResource) error {
	clean := make([]*task.WorkflowResource, 0, len(rows))
	for _, row := range rows {
		if prepare(row) {
			clean = append(clean, row)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return dbc.DB(r.db).Clauses(upsertOnKey).Create(&clean).Error
}

func (r *workflowResourceRepo) Upsert(dbc dbctx.Context, row *task.WorkflowResource) error {
	if !prepare(row) {
		return nil
	}
	return dbc.DB(r.db).Clauses(upsertOnKey).Create(row).Error
}

func (r *workflowResourceRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*task.WorkflowResource, error) {
	var out []*task.WorkflowResource
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func prepare(row *task.WorkflowResource) bool {
	if row == nil || strings.TrimSpace(row.SessionID) == "" || strings.TrimSpace(row.DedupKey) == "" {
		return false
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if len(row.Data) == 0 {
		row.Data = []byte("{}")
	}
	return true
}

// Store adapts the repo to callers that only carry a context.
type Store struct {
	Repo WorkflowResourceRepo
}

func (s *Store) UpsertBatch(ctx context.Context, rows []*task.WorkflowResource) error {
	return s.Repo.UpsertBatch(dbctx.Context{Ctx: ctx}, rows)
}

func (s *Store) Upsert(ctx context.Context, row *task.WorkflowResource) error {
	return s.Repo.Upsert(dbctx.Context{Ctx: ctx}, row)
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*task.WorkflowResource, error) {
	return s.Repo.ListBySession(dbctx.Context{Ctx: ctx}, sessionID)
}
