package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValueRedactsSecrets(t *testing.T) {
	if got := sanitizeValue("upstream_api_key", "sk-123"); got != "[REDACTED]" {
		t.Fatalf("api key: want=[REDACTED] got=%v", got)
	}
	if got := sanitizeValue("authorization", "Bearer abc"); got != "[REDACTED]" {
		t.Fatalf("authorization: want=[REDACTED] got=%v", got)
	}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"
	if got := sanitizeValue("value", jwt); got != "[REDACTED]" {
		t.Fatalf("jwt-looking value: want=[REDACTED] got=%v", got)
	}
}

func TestSanitizeValueHashesSessionIDs(t *testing.T) {
	got, ok := sanitizeValue("session_id", "sess-42").(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("session_id: want hash:..., got=%v", got)
	}
	again := sanitizeValue("session_id", "sess-42")
	if again != got {
		t.Fatalf("hash must be stable: %v vs %v", got, again)
	}
	if sanitizeValue("task_id", "t-1") != "t-1" {
		t.Fatalf("task_id should pass through")
	}
}

func TestSanitizeKVsKeepsOddTrailingValue(t *testing.T) {
	out := sanitizeKVs([]interface{}{"component", "x", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected kvs: %#v", out)
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop().With("component", "test")
	l.Info("ignored", "k", "v")
	l.Sync()
}
