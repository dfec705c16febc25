package resources

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/taskstream-backend/internal/data/repos/testutil"
	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/platform/dbctx"
)

func newResource(sessionID, key, title string, ts time.Time) *task.WorkflowResource {
	return &task.WorkflowResource{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(sessionID+"|"+key)),
		SessionID: sessionID,
		TaskID:    uuid.New(),
		DedupKey:  key,
		Type:      task.ResourceWeb,
		Title:     title,
		Data:      datatypes.JSON(`{"url":"https://example.com"}`),
		StepID:    "step-1",
		Timestamp: ts,
	}
}

func TestWorkflowResourceRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewWorkflowResourceRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	sessionID := "sess-" + uuid.NewString()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := newResource(sessionID, "web:https://example.com", "example", t0)
	if err := repo.UpsertBatch(dbc, []*task.WorkflowResource{
		first,
		newResource(sessionID, "web:https://other.org", "other", t0.Add(time.Second)),
	}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	again := newResource(sessionID, "web:https://example.com", "example (refreshed)", t0.Add(time.Minute))
	again.ID = uuid.New()
	again.StepID = "step-9"
	if err := repo.Upsert(dbc, again); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows, err := repo.ListBySession(dbc, sessionID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(rows))
	}
	var refreshed *task.WorkflowResource
	for _, r := range rows {
		if r.DedupKey == "web:https://example.com" {
			refreshed = r
		}
	}
	if refreshed == nil {
		t.Fatalf("refreshed row missing: %+v", rows)
	}
	if refreshed.Title != "example (refreshed)" {
		t.Fatalf("title should be refreshed: got=%s", refreshed.Title)
	}
	if refreshed.ID != first.ID {
		t.Fatalf("id should keep the first writer: want=%s got=%s", first.ID, refreshed.ID)
	}
	if refreshed.StepID != "step-1" {
		t.Fatalf("step id should keep the first writer: got=%s", refreshed.StepID)
	}
}

func TestWorkflowResourceRepoSkipsInvalidRows(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewWorkflowResourceRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	if err := repo.UpsertBatch(dbc, []*task.WorkflowResource{nil, {SessionID: "s"}, {DedupKey: "k"}}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	rows, err := repo.ListBySession(dbc, "s")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows: want=0 got=%d", len(rows))
	}
	if rows, _ := repo.ListBySession(dbc, "  "); len(rows) != 0 {
		t.Fatalf("blank session should list nothing")
	}
}
