package polymarket

import (
	"testing"
	"time"
)

func TestWindowStartFloors(t *testing.T) {
	// 12:03:47 UTC floors to 12:00:00.
	now := time.Date(2026, 2, 14, 12, 3, 47, 0, time.UTC)
	want := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC).Unix()
	if got := WindowStart(now); got != want {
		t.Fatalf("WindowStart = %d, want %d", got, want)
	}
}

func TestWindowStartOnBoundary(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 5, 0, 0, time.UTC)
	if got := WindowStart(now); got != now.Unix() {
		t.Fatalf("WindowStart on boundary = %d, want %d", got, now.Unix())
	}
}

func TestNextWindow(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 3, 47, 0, time.UTC)
	want := time.Date(2026, 2, 14, 12, 5, 0, 0, time.UTC).Unix()
	if got := NextWindow(now); got != want {
		t.Fatalf("NextWindow = %d, want %d", got, want)
	}
}

func TestTargetWindowEarlyInWindow(t *testing.T) {
	// 30s into a window the current one is still the target.
	now := time.Date(2026, 2, 14, 12, 0, 30, 0, time.UTC)
	if got := TargetWindow(now); got != WindowStart(now) {
		t.Fatalf("TargetWindow = %d, want current %d", got, WindowStart(now))
	}
}

func TestTargetWindowLateInWindow(t *testing.T) {
	now := time.Date(2026, 2, 14, 12, 2, 0, 0, time.UTC)
	if got := TargetWindow(now); got != NextWindow(now) {
		t.Fatalf("TargetWindow = %d, want next %d", got, NextWindow(now))
	}
}

func TestSlug(t *testing.T) {
	got := Slug("btc-updown-5m", 1771051500)
	if got != "btc-updown-5m-1771051500" {
		t.Fatalf("Slug = %q", got)
	}
}

func TestWindowClose(t *testing.T) {
	start := int64(1771051500)
	want := time.Unix(start+300, 0)
	if got := WindowClose(start); !got.Equal(want) {
		t.Fatalf("WindowClose = %v, want %v", got, want)
	}
}
