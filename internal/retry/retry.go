// Package retry wraps fetch operations with bounded retries and exponential
// backoff. A blocked/detection failure gets one extra randomized cool-down on
// top of the schedule: short backoff is not enough against active blocking.
package retry

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"marketscout/internal/fetch"
)

// Policy defines the retry schedule. The zero value is not usable; build one
// with New.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CooldownMin time.Duration
	CooldownMax time.Duration

	// rngMu serializes rng access: one policy is shared by all concurrent
	// enrichment tasks and *rand.Rand is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a retry policy. maxAttempts includes the first try.
func New(maxAttempts int, baseDelay, maxDelay, cooldownMin, cooldownMax time.Duration) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		CooldownMin: cooldownMin,
		CooldownMax: cooldownMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepContext,
	}
}

// Do invokes op up to MaxAttempts times. Before retry attempt k it waits
// BaseDelay * 2^(k-1) plus jitter, capped at MaxDelay; if the previous failure
// was a blocked signal it adds the randomized cool-down as well. A not-found
// failure is permanent and returns immediately. After exhaustion the last
// error propagates to the caller.
func (p *Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt)
			if fetch.IsBlocked(lastErr) {
				cooldown := p.cooldown()
				log.Printf("%s: blocked signal, cooling down %.1fs before retry", name, cooldown.Seconds())
				delay += cooldown
			}
			log.Printf("%s: retry %d/%d in %.1fs", name, attempt, p.MaxAttempts, delay.Seconds())
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if fetch.IsNotFound(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", name, p.MaxAttempts, lastErr)
}

// backoff returns the exponential delay before the given attempt
// (attempt >= 2), with up to 10% random jitter, capped at MaxDelay.
func (p *Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-2)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(p.randInt63n(int64(d)/10 + 1))
	if d+jitter > p.MaxDelay {
		return p.MaxDelay
	}
	return d + jitter
}

func (p *Policy) cooldown() time.Duration {
	if p.CooldownMax <= p.CooldownMin {
		return p.CooldownMin
	}
	return p.CooldownMin + time.Duration(p.randInt63n(int64(p.CooldownMax-p.CooldownMin)))
}

func (p *Policy) randInt63n(n int64) int64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Int63n(n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
