// Package fetch retrieves marketplace pages through a randomized browser-like
// fingerprint with human-behavior pacing, and classifies failures into tagged
// error kinds for retry handling.
package fetch

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"marketscout/internal/ratelimit"
)

// Pacing controls the simulated human behavior performed after a page loads
// and before its content is handed to the caller.
type Pacing struct {
	ReadMin time.Duration
	ReadMax time.Duration

	MouseProb     float64
	MouseMovesMin int
	MouseMovesMax int
	MousePauseMin time.Duration
	MousePauseMax time.Duration

	ScrollProb     float64
	ScrollStepsMin int
	ScrollStepsMax int
	ScrollPauseMin time.Duration
	ScrollPauseMax time.Duration
}

// DefaultPacing mirrors observed human browsing: a few seconds of reading,
// occasional pointer movement, and stepped scrolling through the page.
func DefaultPacing() Pacing {
	return Pacing{
		ReadMin:        2 * time.Second,
		ReadMax:        5 * time.Second,
		MouseProb:      0.5,
		MouseMovesMin:  2,
		MouseMovesMax:  4,
		MousePauseMin:  100 * time.Millisecond,
		MousePauseMax:  300 * time.Millisecond,
		ScrollProb:     0.7,
		ScrollStepsMin: 5,
		ScrollStepsMax: 10,
		ScrollPauseMin: 300 * time.Millisecond,
		ScrollPauseMax: 800 * time.Millisecond,
	}
}

// Client fetches pages under rate limiting with a fixed per-client
// fingerprint. Create one client per scraping session.
type Client struct {
	nav     Navigator
	limiter *ratelimit.Limiter
	fp      Fingerprint
	pacing  Pacing

	// rngMu serializes rng access: one client is shared by all concurrent
	// enrichment tasks and *rand.Rand is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithPacing overrides the default pacing profile.
func WithPacing(p Pacing) Option {
	return func(c *Client) { c.pacing = p }
}

// WithFingerprint pins the fingerprint instead of drawing one at random.
func WithFingerprint(fp Fingerprint) Option {
	return func(c *Client) { c.fp = fp }
}

// WithSeed makes fingerprint selection and pacing deterministic.
func WithSeed(seed int64) Option {
	return func(c *Client) {
		c.rng = rand.New(rand.NewSource(seed))
		c.fp = randomFingerprint(c.rng)
	}
}

// NewClient draws a random fingerprint and returns a ready client.
func NewClient(nav Navigator, limiter *ratelimit.Limiter, opts ...Option) *Client {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := &Client{
		nav:     nav,
		limiter: limiter,
		fp:      randomFingerprint(rng),
		pacing:  DefaultPacing(),
		rng:     rng,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	log.Printf("Fetch client ready: %dx%d viewport, %s, %s",
		c.fp.Viewport.Width, c.fp.Viewport.Height, c.fp.Timezone, c.fp.Locale)
	return c
}

// Fingerprint returns the identity this client presents.
func (c *Client) Fingerprint() Fingerprint { return c.fp }

// FetchPage waits for rate-limit budget, navigates to pageURL, then performs
// the pacing sequence before returning the page content. Failures come back
// as *PageError with a classification the retry policy can branch on.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	content, err := c.nav.Navigate(ctx, pageURL, c.fp)
	if err != nil {
		return "", err
	}

	if err := c.pace(ctx); err != nil {
		return "", err
	}
	return content, nil
}

// pace simulates a visitor reading, moving the pointer, and scrolling.
func (c *Client) pace(ctx context.Context) error {
	if err := c.sleep(ctx, c.between(c.pacing.ReadMin, c.pacing.ReadMax)); err != nil {
		return err
	}

	if c.chance(c.pacing.MouseProb) {
		moves := c.intBetween(c.pacing.MouseMovesMin, c.pacing.MouseMovesMax)
		for i := 0; i < moves; i++ {
			if err := c.sleep(ctx, c.between(c.pacing.MousePauseMin, c.pacing.MousePauseMax)); err != nil {
				return err
			}
		}
	}

	if c.chance(c.pacing.ScrollProb) {
		steps := c.intBetween(c.pacing.ScrollStepsMin, c.pacing.ScrollStepsMax)
		for i := 0; i < steps; i++ {
			if err := c.sleep(ctx, c.between(c.pacing.ScrollPauseMin, c.pacing.ScrollPauseMax)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) chance(prob float64) bool {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64() < prob
}

func (c *Client) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}

func (c *Client) intBetween(min, max int) int {
	if max <= min {
		return min
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return min + c.rng.Intn(max-min+1)
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
