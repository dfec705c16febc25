package envutil

import (
	"testing"
	"time"
)

func TestTypedLookups(t *testing.T) {
	t.Setenv("TS_INT", "12")
	t.Setenv("TS_BAD_INT", "x")
	t.Setenv("TS_BOOL", "yes")
	t.Setenv("TS_DUR", "750ms")
	t.Setenv("TS_DUR_SECS", "3")

	if got := Int("TS_INT", 1); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	if got := Int("TS_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: want=7 got=%d", got)
	}
	if !Bool("TS_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	if got := Duration("TS_DUR", time.Second); got != 750*time.Millisecond {
		t.Fatalf("Duration: want=750ms got=%s", got)
	}
	if got := Duration("TS_DUR_SECS", time.Second); got != 3*time.Second {
		t.Fatalf("Duration seconds: want=3s got=%s", got)
	}
	if got := String("TS_MISSING", "def"); got != "def" {
		t.Fatalf("String default: want=def got=%s", got)
	}
}
