package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTimer struct {
	requested time.Duration
	fire      chan time.Time
	stopped   bool
}

func useFakeTimer(t *testing.T) *fakeTimer {
	t.Helper()
	ft := &fakeTimer{fire: make(chan time.Time, 1)}
	original := newTimer
	newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
		ft.requested = d
		return ft.fire, func() bool {
			ft.stopped = true
			return true
		}
	}
	t.Cleanup(func() { newTimer = original })
	return ft
}

func TestWaitForReturnsWhenTimerFires(t *testing.T) {
	ft := useFakeTimer(t)
	ft.fire <- time.Now()

	if err := WaitFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.requested != 3*time.Second {
		t.Fatalf("expected a 3s timer, got %s", ft.requested)
	}
	if !ft.stopped {
		t.Fatalf("expected the timer to be stopped")
	}
}

func TestWaitForHonoursCancellation(t *testing.T) {
	ft := useFakeTimer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !ft.stopped {
		t.Fatalf("cancelled wait must release its timer")
	}
}

func TestWaitForRealTimer(t *testing.T) {
	t.Parallel()

	start := time.Now()
	if err := WaitFor(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("returned after %s, before the delay", elapsed)
	}
}

func TestWaitForNonPositiveDuration(t *testing.T) {
	t.Parallel()

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
