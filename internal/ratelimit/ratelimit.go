// Package ratelimit enforces a request budget over two rolling windows:
// a per-minute cap and a per-hour cap. A sliding-window check avoids the
// burst-then-starve artifacts of fixed buckets at minute boundaries.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// Limiter tracks recent request timestamps and blocks callers until one more
// request fits under both caps. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	minute    []time.Time
	hour      []time.Time

	poll  time.Duration
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the given per-minute and per-hour caps.
func New(perMinute, perHour int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		poll:      defaultPollInterval,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Acquire blocks until issuing one more request would not violate either cap,
// then records the request timestamp. It returns early only if ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if l.tryAcquire() {
			return nil
		}
		log.Println("Rate limit reached, waiting...")
		if err := l.sleep(ctx, l.poll); err != nil {
			return err
		}
	}
}

func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.minute) >= l.perMinute || len(l.hour) >= l.perHour {
		return false
	}

	l.minute = append(l.minute, now)
	l.hour = append(l.hour, now)
	return true
}

// Usage returns the number of requests recorded in the last minute and hour.
func (l *Limiter) Usage() (lastMinute, lastHour int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.minute), len(l.hour)
}

// prune drops timestamps that fell out of their windows. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	minuteAgo := now.Add(-time.Minute)
	for len(l.minute) > 0 && !l.minute[0].After(minuteAgo) {
		l.minute = l.minute[1:]
	}

	hourAgo := now.Add(-time.Hour)
	for len(l.hour) > 0 && !l.hour[0].After(hourAgo) {
		l.hour = l.hour[1:]
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
