package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskstream-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID+"|"+td.TraceID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set(headerTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Body.String() != "req-1|trace-1" {
		t.Fatalf("ids from headers: got=%q", rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) != "req-1" {
		t.Fatalf("request id not echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, strings.Repeat("a", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	parts := strings.Split(rec.Body.String(), "|")
	if len(parts) != 2 || len(parts[0]) != 36 || len(parts[1]) != 36 {
		t.Fatalf("generated ids: got=%q", rec.Body.String())
	}
}
