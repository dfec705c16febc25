package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

func sampleInput() Input {
	return Input{
		SessionID: "sess-1",
		TaskID:    uuid.MustParse("7d3c2a44-2a0b-4b8e-9d43-1e0f5c1f6a10"),
		Title:     "Flight search",
		Request:   "Find me flights to Lisbon",
		Content:   "Three options were found.",
		Steps: []task.ExecutionStep{
			{StepNumber: 1, TotalSteps: 2, DisplayText: "finished performing: search", IsCompleted: true},
			{StepNumber: 2, TotalSteps: 2, DisplayText: "currently performing: compare"},
		},
		Resources: []task.WorkflowResource{
			{Type: task.ResourceWeb, Title: "example.com", Description: "search results", Data: datatypes.JSON(`{"url":"https://example.com"}`)},
		},
		GeneratedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewExporterFormats(t *testing.T) {
	for format, ext := range map[string]string{"": "md", "md": "md", "markdown": "md", "json": "json", "YAML": "yaml"} {
		exp, err := NewExporter(format)
		if err != nil {
			t.Fatalf("NewExporter(%q): %v", format, err)
		}
		if exp.Extension() != ext {
			t.Fatalf("NewExporter(%q) ext: want=%s got=%s", format, ext, exp.Extension())
		}
	}
	if _, err := NewExporter("pdf"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(sampleInput(), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"# Flight search", "## Request", "Three options were found.", "- [x] 1/2 finished performing: search", "- [ ] 2/2", "**example.com** (web): search results"} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestJSONAndYAMLExporters(t *testing.T) {
	var jb bytes.Buffer
	if err := (&JSONExporter{}).Export(sampleInput(), &jb); err != nil {
		t.Fatalf("json Export: %v", err)
	}
	var decoded Input
	if err := json.Unmarshal(jb.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if decoded.Title != "Flight search" || len(decoded.Steps) != 2 {
		t.Fatalf("json content: %+v", decoded)
	}

	var yb bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleInput(), &yb); err != nil {
		t.Fatalf("yaml Export: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(yb.Bytes(), &doc); err != nil {
		t.Fatalf("yaml decode: %v", err)
	}
	if doc["title"] != "Flight search" {
		t.Fatalf("yaml title: got=%v", doc["title"])
	}
	res, ok := doc["resources"].([]any)
	if !ok || len(res) != 1 {
		t.Fatalf("yaml resources: %#v", doc["resources"])
	}
	data, ok := res[0].(map[string]any)["data"].(map[string]any)
	if !ok || data["url"] != "https://example.com" {
		t.Fatalf("resource data should render as a mapping: %#v", res[0])
	}
}

func TestServiceExportWritesToLocalSink(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(logger.Nop(), "markdown", &LocalSink{Dir: dir})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	in := sampleInput()
	loc, err := svc.Export(context.Background(), in)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := filepath.Join(dir, "sess-1", in.TaskID.String()+".md")
	if loc != want {
		t.Fatalf("location: want=%s got=%s", want, loc)
	}
	b, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(b), "# Flight search") {
		t.Fatalf("unexpected report body: %q", string(b))
	}
}

func TestKeySanitizesSegments(t *testing.T) {
	if got := Key("../etc", "t1", "md"); got != "___etc/t1.md" {
		t.Fatalf("Key: got=%s", got)
	}
	if got := Key("", "t1", "json"); got != "_/t1.json" {
		t.Fatalf("Key empty session: got=%s", got)
	}
}
