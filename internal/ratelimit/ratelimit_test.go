package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps, so tests run instantly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(perMinute, perHour int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := New(perMinute, perHour)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestMinuteWindowNeverExceeded(t *testing.T) {
	const perMinute = 5
	l, clock := newTestLimiter(perMinute, 1000)

	var accepted []time.Time
	for i := 0; i < 40; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		accepted = append(accepted, clock.t)
	}

	for i := range accepted {
		count := 0
		for j := i; j < len(accepted); j++ {
			if accepted[j].Sub(accepted[i]) < time.Minute {
				count++
			}
		}
		if count > perMinute {
			t.Fatalf("window starting at %v holds %d accepted requests, cap is %d",
				accepted[i], count, perMinute)
		}
	}
}

func TestHourWindowNeverExceeded(t *testing.T) {
	const perHour = 12
	l, clock := newTestLimiter(1000, perHour)

	var accepted []time.Time
	for i := 0; i < 30; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		accepted = append(accepted, clock.t)
	}

	for i := range accepted {
		count := 0
		for j := i; j < len(accepted); j++ {
			if accepted[j].Sub(accepted[i]) < time.Hour {
				count++
			}
		}
		if count > perHour {
			t.Fatalf("hour window starting at %v holds %d requests, cap is %d",
				accepted[i], count, perHour)
		}
	}
}

func TestAcquireBlocksUntilWindowFrees(t *testing.T) {
	l, clock := newTestLimiter(2, 1000)
	start := clock.t

	for i := 0; i < 2; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if clock.t != start {
		t.Fatal("first two acquires should not need to wait")
	}

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if clock.t.Sub(start) < time.Minute {
		t.Errorf("third acquire waited only %v, want at least a minute", clock.t.Sub(start))
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l, _ := newTestLimiter(1, 1000)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Window is full; a canceled context must abort the wait.
	l.sleep = sleepContext
	l.poll = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUsageReflectsPruning(t *testing.T) {
	l, clock := newTestLimiter(10, 100)
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	m, h := l.Usage()
	if m != 3 || h != 3 {
		t.Fatalf("expected usage 3/3, got %d/%d", m, h)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	m, h = l.Usage()
	if m != 0 {
		t.Errorf("minute window should be empty after 2m, got %d", m)
	}
	if h != 3 {
		t.Errorf("hour window should still hold 3, got %d", h)
	}
}
