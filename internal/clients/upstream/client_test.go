package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/taskstream-backend/internal/domain/task"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", APIKey: "secret", MaxRetries: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestNewTrimsBaseURL(t *testing.T) {
	c, err := New(Options{BaseURL: "  http://upstream.internal:9000/  "})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.BaseURL(); got != "http://upstream.internal:9000" {
		t.Fatalf("base url: want=http://upstream.internal:9000 got=%s", got)
	}
}

func TestOpenTaskStream(t *testing.T) {
	var gotReq task.TaskRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks/stream" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("accept header: got=%s", r.Header.Get("Accept"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("authorization header: got=%s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"start\"}\n\n")
	}))

	taskID := uuid.New()
	body, err := c.Open(context.Background(), task.TaskRequest{SessionID: "s1", TaskID: taskID, Message: "hello"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"start"`) {
		t.Fatalf("body: %q", string(raw))
	}
	if gotReq.TaskID != taskID || gotReq.Message != "hello" {
		t.Fatalf("request payload: %+v", gotReq)
	}
}

func TestOpenTaskStreamHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","code":"busy"}}`)
	}))
	_, err := c.OpenTaskStream(context.Background(), task.TaskRequest{Message: "x"})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError, got %v", err)
	}
	if he.StatusCode != http.StatusServiceUnavailable || he.Message != "overloaded" || he.Code != "busy" {
		t.Fatalf("http error: %+v", he)
	}
}

func TestHealthy(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	if !c.Healthy(context.Background()) {
		t.Fatalf("want healthy")
	}
	healthy.Store(false)
	if c.Healthy(context.Background()) {
		t.Fatalf("want unhealthy")
	}
}

func TestGenerateSuggestionsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req task.SuggestionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.UserText != "find flights" {
			t.Errorf("user text: got=%q", req.UserText)
		}
		_, _ = io.WriteString(w, `{"suggestions":["Book it"," Book it ","","Compare prices"]}`)
	}))

	got, err := c.GenerateSuggestions(context.Background(), task.SuggestionRequest{Message: "done", UserText: "find flights"})
	if err != nil {
		t.Fatalf("GenerateSuggestions: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: want=2 got=%d", calls.Load())
	}
	if len(got) != 2 || got[0] != "Book it" || got[1] != "Compare prices" {
		t.Fatalf("suggestions: %v", got)
	}
}

func TestGenerateSuggestionsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	if _, err := c.GenerateSuggestions(context.Background(), task.SuggestionRequest{}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: want=1 got=%d", calls.Load())
	}
}
