package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
	"github.com/yungbote/taskstream-backend/internal/realtime"
	"github.com/yungbote/taskstream-backend/internal/services/report"
	"github.com/yungbote/taskstream-backend/internal/stream"
)

const longAnswer = "Three direct flights leave Lisbon on Friday; the cheapest is the 07:15 departure at 89 EUR."

type fakeStream struct {
	req task.TaskRequest
	w   *io.PipeWriter
}

func (f *fakeStream) send(t *testing.T, chunks ...task.StreamChunk) {
	t.Helper()
	for _, c := range chunks {
		b, err := stream.EncodeFrame(c)
		if err != nil {
			t.Fatalf("encode frame: %v", err)
		}
		if _, err := f.w.Write(b); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
}

type pipeTransport struct {
	streams chan *fakeStream
	openErr error
}

func (p *pipeTransport) Open(_ context.Context, req task.TaskRequest) (io.ReadCloser, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	r, w := io.Pipe()
	p.streams <- &fakeStream{req: req, w: w}
	return r, nil
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ realtime.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakeHealth struct{ ok bool }

func (h *fakeHealth) Healthy(context.Context) bool { return h.ok }

type fakeSuggestions struct {
	mu        sync.Mutex
	calls     int
	failFirst int
}

func (f *fakeSuggestions) GenerateSuggestions(_ context.Context, req task.SuggestionRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return nil, errors.New("suggestion service unavailable")
	}
	return []string{"Compare return fares", "Check hotels near the airport"}, nil
}

func (f *fakeSuggestions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReports struct {
	mu    sync.Mutex
	calls int
	last  report.Input
}

func (f *fakeReports) Export(_ context.Context, in report.Input) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = in
	return "mem://" + in.TaskID.String(), nil
}

func (f *fakeReports) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu         sync.Mutex
	batchErr   error
	batchCalls int
	single     int
}

func (f *fakeStore) UpsertBatch(_ context.Context, rows []*task.WorkflowResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	return f.batchErr
}

func (f *fakeStore) Upsert(_ context.Context, row *task.WorkflowResource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single++
	return nil
}

type harness struct {
	o       *Orchestrator
	tr      *pipeTransport
	pub     *recorder
	health  *fakeHealth
	sugg    *fakeSuggestions
	reports *fakeReports
	store   *fakeStore
}

func newHarness(t *testing.T, tweak func(h *harness, o *Options)) *harness {
	t.Helper()
	h := &harness{
		tr:      &pipeTransport{streams: make(chan *fakeStream, 8)},
		pub:     &recorder{},
		health:  &fakeHealth{ok: true},
		sugg:    &fakeSuggestions{},
		reports: &fakeReports{},
		store:   &fakeStore{},
	}
	opts := Options{
		CompletionGrace: 5 * time.Second,
		ReplaceWait:     time.Second,
		MinReportLength: 50,
	}
	if tweak != nil {
		tweak(h, &opts)
	}
	h.o = New(Deps{
		Transport:   h.tr,
		Health:      h.health,
		Suggestions: h.sugg,
		Reports:     h.reports,
		Resources:   h.store,
		Bus:         h.pub,
	}, opts)
	t.Cleanup(h.o.Close)
	return h
}

func (h *harness) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case fs := <-h.tr.streams:
		return fs
	case <-time.After(2 * time.Second):
		t.Fatalf("transport was never opened")
		return nil
	}
}

func (h *harness) snapshot(t *testing.T, sessionID string) Snapshot {
	t.Helper()
	snap, err := h.o.Snapshot(sessionID)
	if err != nil {
		t.Fatalf("Snapshot(%s): %v", sessionID, err)
	}
	return snap
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitComplete(t *testing.T, sessionID string) Snapshot {
	t.Helper()
	waitFor(t, "message completion", func() bool {
		snap := h.snapshot(t, sessionID)
		return snap.Message != nil && snap.Message.IsComplete
	})
	return h.snapshot(t, sessionID)
}

func (h *harness) waitSideEffects(t *testing.T, sessionID string) Snapshot {
	t.Helper()
	waitFor(t, "side effects to settle", func() bool {
		snap := h.snapshot(t, sessionID)
		for _, st := range snap.SideEffects {
			if st.State == GuardNotStarted || st.State == GuardInFlight {
				return false
			}
		}
		return len(snap.SideEffects) == 2
	})
	return h.snapshot(t, sessionID)
}

func chunk(typ task.ChunkType) task.StreamChunk { return task.StreamChunk{Type: typ} }

func content(text string) task.StreamChunk {
	return task.StreamChunk{Type: task.ChunkContent, Content: text}
}

func TestTaskHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.o.StartTask(context.Background(), "s1", "Find me cheap flights to Lisbon", map[string]any{"locale": "en"})
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	if fs.req.TaskID != res.TaskID || fs.req.Message != "Find me cheap flights to Lisbon" {
		t.Fatalf("transport request: %+v", fs.req)
	}

	running := progress(1, "", task.StatusRunning, "searching flights")
	running.URLs = []string{"https://flights.example.com/lis"}
	fs.send(t,
		task.StreamChunk{Type: task.ChunkStart, Title: "Flights to Lisbon"},
		running,
		progress(1, "", task.StatusCompleted, "searching flights"),
		content(longAnswer),
		chunk(task.ChunkComplete),
	)

	snap := h.waitComplete(t, "s1")
	want := []string{
		"finished reasoning about: Flights to Lisbon",
		"finished performing: searching flights",
		LineReportGenerated,
	}
	lines := snap.Message.ProgressLines
	if len(lines) != len(want) {
		t.Fatalf("progress lines: want=%q got=%q", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: want=%q got=%q", i, want[i], lines[i])
		}
	}
	if snap.Message.Content != longAnswer || snap.Message.IsStreaming {
		t.Fatalf("message: %+v", snap.Message)
	}
	if len(snap.Steps) != 1 || !snap.Steps[0].IsCompleted {
		t.Fatalf("steps: %+v", snap.Steps)
	}
	if len(snap.Resources) != 1 || snap.Resources[0].Type != task.ResourceWeb {
		t.Fatalf("resources: %+v", snap.Resources)
	}

	snap = h.waitSideEffects(t, "s1")
	if snap.SideEffects[SideEffectReport].State != GuardDone || snap.SideEffects[SideEffectSuggestions].State != GuardDone {
		t.Fatalf("side effects: %+v", snap.SideEffects)
	}
	if snap.ReportLocation != "mem://"+res.TaskID.String() {
		t.Fatalf("report location: got=%q", snap.ReportLocation)
	}
	if len(snap.Suggestions) != 2 {
		t.Fatalf("suggestions: %v", snap.Suggestions)
	}
	for _, typ := range []realtime.EventType{
		realtime.EventTaskStart,
		realtime.EventCurrentStep,
		realtime.EventResourcesUpdated,
		realtime.EventTaskComplete,
		realtime.EventReportReady,
		realtime.EventSuggestionsReady,
	} {
		waitFor(t, string(typ)+" event", func() bool { return h.pub.count(typ) > 0 })
	}
	if n := h.pub.count(realtime.EventTaskStart); n != 1 {
		t.Fatalf("task_start events: want=1 got=%d", n)
	}
}

func TestDuplicateCompleteRunsSideEffectsOnce(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.o.StartTask(context.Background(), "s1", "summarize the quarter", nil)
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content(longAnswer), chunk(task.ChunkComplete), chunk(task.ChunkComplete))

	h.waitSideEffects(t, "s1")
	time.Sleep(50 * time.Millisecond)

	statuses, err := h.o.RetrySideEffects(context.Background(), "s1", res.TaskID)
	if err != nil {
		t.Fatalf("RetrySideEffects: %v", err)
	}
	if statuses[SideEffectReport].Attempts != 1 {
		t.Fatalf("report attempts: want=1 got=%d", statuses[SideEffectReport].Attempts)
	}
	if got := h.reports.count(); got != 1 {
		t.Fatalf("report exports: want=1 got=%d", got)
	}
	if got := h.sugg.count(); got != 1 {
		t.Fatalf("suggestion calls: want=1 got=%d", got)
	}
	if n := h.pub.count(realtime.EventTaskComplete); n != 1 {
		t.Fatalf("task_complete events: want=1 got=%d", n)
	}
}

func TestNextTaskRegeneratesSideEffects(t *testing.T) {
	h := newHarness(t, nil)

	first, err := h.o.StartTask(context.Background(), "s1", "summarize the quarter", nil)
	if err != nil {
		t.Fatalf("StartTask first: %v", err)
	}
	h.next(t).send(t, content(longAnswer), chunk(task.ChunkComplete))
	h.waitSideEffects(t, "s1")
	if r, s := h.reports.count(), h.sugg.count(); r != 1 || s != 1 {
		t.Fatalf("after first task: reports=%d suggestions=%d", r, s)
	}

	second, err := h.o.StartTask(context.Background(), "s1", "now the next quarter", nil)
	if err != nil {
		t.Fatalf("StartTask second: %v", err)
	}
	h.next(t).send(t, content(longAnswer+" Updated."), chunk(task.ChunkComplete))
	waitFor(t, "second task side effects", func() bool {
		return h.reports.count() == 2 && h.sugg.count() == 2
	})

	snap := h.waitSideEffects(t, "s1")
	if snap.Message == nil || snap.Message.ID != second.TaskID {
		t.Fatalf("current message should be the second task")
	}
	for effect, st := range snap.SideEffects {
		if st.State != GuardDone || st.Attempts != 1 {
			t.Fatalf("%s: want done after 1 attempt got=%s/%d", effect, st.State, st.Attempts)
		}
	}
	if want := "mem://" + second.TaskID.String(); snap.ReportLocation != want {
		t.Fatalf("report location: want=%s got=%s", want, snap.ReportLocation)
	}
	if first.TaskID == second.TaskID {
		t.Fatalf("tasks should have distinct ids")
	}
}

func TestTransportErrorAfterCompleteIsBenign(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content(longAnswer), chunk(task.ChunkComplete))
	h.waitComplete(t, "s1")
	fs.w.CloseWithError(errors.New("connection reset by peer"))

	waitFor(t, "connection close", func() bool {
		snap := h.snapshot(t, "s1")
		return snap.Connection != nil && snap.Connection.Phase == task.PhaseClosed
	})
	snap := h.snapshot(t, "s1")
	if snap.Message.Error != "" || strings.Contains(snap.Message.Content, "Error") {
		t.Fatalf("a completed task must not show a transport error: %+v", snap.Message)
	}
}

func TestTransportFailureBeforeDataIsSurfaced(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.w.CloseWithError(errors.New("connection refused"))

	snap := h.waitComplete(t, "s1")
	if snap.Message.Error != NoticeTransportFailed {
		t.Fatalf("error: want=%q got=%q", NoticeTransportFailed, snap.Message.Error)
	}
	if snap.Message.IsStreaming {
		t.Fatalf("loading flag still set")
	}
	waitFor(t, "task_complete event", func() bool { return h.pub.count(realtime.EventTaskComplete) == 1 })
}

func TestOpenFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Options) {
		h.tr.openErr = errors.New("dial tcp: connection refused")
	})
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	snap := h.waitComplete(t, "s1")
	if snap.Message.Error != NoticeTransportFailed {
		t.Fatalf("error: got=%q", snap.Message.Error)
	}
}

func TestStreamEndAfterDataIsNotAnError(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, chunk(task.ChunkStart), content("partial answer"))
	fs.w.CloseWithError(errors.New("unexpected EOF"))

	snap := h.waitComplete(t, "s1")
	if snap.Message.Error != "" || snap.Message.Content != "partial answer" {
		t.Fatalf("message: %+v", snap.Message)
	}
}

func TestUpstreamErrorChunk(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, chunk(task.ChunkStart), task.StreamChunk{Type: task.ChunkError, Error: "model overloaded"})

	snap := h.waitComplete(t, "s1")
	if snap.Message.Error != "model overloaded" {
		t.Fatalf("error: got=%q", snap.Message.Error)
	}
	if snap.Message.Content != "Error: model overloaded" {
		t.Fatalf("content: got=%q", snap.Message.Content)
	}
	if h.reports.count() != 0 {
		t.Fatalf("errored task must not export a report")
	}
}

func TestSupersededConnectionIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "first question", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs1 := h.next(t)
	fs1.send(t, chunk(task.ChunkStart))
	waitFor(t, "first stream to start", func() bool {
		snap := h.snapshot(t, "s1")
		return snap.Connection != nil && snap.Connection.Phase == task.PhaseStreaming
	})

	s := h.o.lookup("s1")
	s.mu.Lock()
	old := s.current
	s.mu.Unlock()

	if _, err := h.o.StartTask(context.Background(), "s1", "second question", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs2 := h.next(t)

	h.o.onChunk(old, content("stale text"))
	fs2.send(t, chunk(task.ChunkStart), content("fresh"))

	waitFor(t, "second stream content", func() bool {
		snap := h.snapshot(t, "s1")
		return snap.Message != nil && snap.Message.Content == "fresh"
	})
	snap := h.snapshot(t, "s1")
	if len(snap.History) != 2 {
		t.Fatalf("history: want=2 got=%d", len(snap.History))
	}
	first := snap.History[0]
	if !first.IsComplete || first.IsStreaming || strings.Contains(first.Content, "stale") {
		t.Fatalf("superseded message: %+v", first)
	}
	if snap.Message.Request != "second question" {
		t.Fatalf("current message request: got=%q", snap.Message.Request)
	}
}

func TestCancelStopsSession(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, chunk(task.ChunkStart), progress(1, "a", task.StatusRunning, "crawling"))
	waitFor(t, "first step", func() bool { return len(h.snapshot(t, "s1").Steps) == 1 })

	if err := h.o.Cancel(context.Background(), "s1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	snap := h.snapshot(t, "s1")
	lines := snap.Message.ProgressLines
	if lines[len(lines)-1] != LineConnectionsClosed {
		t.Fatalf("last line: want=%q got=%q", LineConnectionsClosed, lines[len(lines)-1])
	}
	if !snap.Message.Cancelled || snap.Message.IsStreaming {
		t.Fatalf("message flags: %+v", snap.Message)
	}
	if h.pub.count(realtime.EventConnectionStopped) != 1 {
		t.Fatalf("connection_stopped should be published")
	}
	waitFor(t, "connection close", func() bool {
		snap := h.snapshot(t, "s1")
		return snap.Connection != nil && snap.Connection.Phase == task.PhaseClosed
	})

	if err := h.o.Cancel(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: want=%v got=%v", ErrSessionNotFound, err)
	}
}

func TestStopAllCancelsEverySession(t *testing.T) {
	h := newHarness(t, nil)
	for _, id := range []string{"a", "b"} {
		if _, err := h.o.StartTask(context.Background(), id, "hello", nil); err != nil {
			t.Fatalf("StartTask(%s): %v", id, err)
		}
		h.next(t)
	}
	if n := h.o.StopAll(context.Background()); n != 2 {
		t.Fatalf("stopped: want=2 got=%d", n)
	}
	if n := h.o.StopAll(context.Background()); n != 0 {
		t.Fatalf("second StopAll should find nothing: got=%d", n)
	}
}

func TestPersistenceFallsBackToSingleRowWrites(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Options) {
		h.store.batchErr = errors.New("deadlock detected")
	})
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	p := progress(1, "a", task.StatusRunning, "reading")
	p.URLs = []string{"https://a.example.com", "https://b.example.com"}
	fs.send(t, p)
	waitFor(t, "resources", func() bool { return len(h.snapshot(t, "s1").Resources) == 2 })

	h.o.Close()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.store.batchCalls != 1 || h.store.single != 2 {
		t.Fatalf("writes: batch=%d single=%d", h.store.batchCalls, h.store.single)
	}
}

func TestUndecodableFrameIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	if _, err := fs.w.Write([]byte("data: {not json\n\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs.send(t, content("still here"))
	waitFor(t, "content after bad frame", func() bool {
		snap := h.snapshot(t, "s1")
		return snap.Message != nil && snap.Message.Content == "still here"
	})
}

func TestIdleTimeoutEndsStream(t *testing.T) {
	h := newHarness(t, func(_ *harness, o *Options) { o.IdleTimeout = 200 * time.Millisecond })
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content("partial"))

	snap := h.waitComplete(t, "s1")
	if snap.Message.Error != "" {
		t.Fatalf("idle stream with data should end without error: %q", snap.Message.Error)
	}
}

func TestRetrySideEffectsAfterFailure(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Options) { h.sugg.failFirst = 1 })
	res, err := h.o.StartTask(context.Background(), "s1", "hello", nil)
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content(longAnswer), chunk(task.ChunkComplete))

	snap := h.waitSideEffects(t, "s1")
	if st := snap.SideEffects[SideEffectSuggestions]; st.State != GuardFailed || st.LastError == "" {
		t.Fatalf("suggestions after first attempt: %+v", st)
	}
	if snap.Message.Error != "" {
		t.Fatalf("side effect failure must not mark the task failed")
	}

	statuses, err := h.o.RetrySideEffects(context.Background(), "s1", res.TaskID)
	if err != nil {
		t.Fatalf("RetrySideEffects: %v", err)
	}
	if statuses[SideEffectSuggestions].State != GuardDone || statuses[SideEffectSuggestions].Attempts != 2 {
		t.Fatalf("suggestions after retry: %+v", statuses[SideEffectSuggestions])
	}
	if h.reports.count() != 1 {
		t.Fatalf("report must not be exported twice: %d", h.reports.count())
	}
}

func TestUnhealthyUpstreamSkipsSuggestions(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Options) { h.health.ok = false })
	if _, err := h.o.StartTask(context.Background(), "s1", "hello", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content(longAnswer), chunk(task.ChunkComplete))

	snap := h.waitSideEffects(t, "s1")
	if st := snap.SideEffects[SideEffectSuggestions]; st.State != GuardFailed {
		t.Fatalf("suggestions: %+v", st)
	}
	if h.sugg.count() != 0 {
		t.Fatalf("generator should not be called while unhealthy")
	}
	if snap.SideEffects[SideEffectReport].State != GuardDone {
		t.Fatalf("report should still be produced")
	}
}

func TestTrivialContentSkipsSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.o.StartTask(context.Background(), "s1", "hello", nil)
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content("ok"), chunk(task.ChunkComplete))
	h.waitComplete(t, "s1")

	if _, err := h.o.RetrySideEffects(context.Background(), "s1", res.TaskID); !errors.Is(err, ErrTrivialContent) {
		t.Fatalf("want=%v got=%v", ErrTrivialContent, err)
	}
	if h.reports.count() != 0 || h.sugg.count() != 0 {
		t.Fatalf("no side effects expected for trivial content")
	}
}

func TestCloseDropsDelayedSideEffects(t *testing.T) {
	h := newHarness(t, func(_ *harness, o *Options) { o.SideEffectDelay = time.Hour })
	if _, err := h.o.StartTask(context.Background(), "s1", "summarize the quarter", nil); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	fs := h.next(t)
	fs.send(t, content(longAnswer), chunk(task.ChunkComplete))
	h.waitComplete(t, "s1")

	closed := make(chan struct{})
	go func() {
		h.o.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close waited out the side effect delay")
	}

	if h.reports.count() != 0 || h.sugg.count() != 0 {
		t.Fatalf("delayed side effects should not run after Close: reports=%d suggestions=%d", h.reports.count(), h.sugg.count())
	}
	for effect, st := range h.snapshot(t, "s1").SideEffects {
		if st.State != GuardNotStarted || st.Attempts != 0 {
			t.Fatalf("%s: want not started, got %+v", effect, st)
		}
	}
}

func TestStartTaskValidation(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.o.StartTask(context.Background(), "s1", "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message: got=%v", err)
	}
	if _, err := h.o.StartTask(context.Background(), "", "hi", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("empty session: got=%v", err)
	}
	h.o.Close()
	if _, err := h.o.StartTask(context.Background(), "s1", "hi", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed: got=%v", err)
	}
}
