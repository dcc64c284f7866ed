// Package backoff implements the process-wide request pacing policy. The
// Controller is the only component allowed to sleep between requests: every
// fetch waits in BeforeRequest first, then feeds its outcome back through
// Report so the mandated delay can escalate or reset.
package backoff

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scrapekit/saasdir/internal/scrape"
	"github.com/scrapekit/saasdir/internal/telemetry"
)

// Config parameterizes the controller. MinDelay/MaxDelay bound the base
// window sampled after a success; CapDelay bounds escalation; crossing
// FailureThreshold consecutive failures triggers a full SessionCooldown
// pause. FloorRPS, when positive, adds a token-bucket floor underneath the
// adaptive delay so bursts cannot slip through right after a reset.
type Config struct {
	MinDelay         time.Duration
	MaxDelay         time.Duration
	CapDelay         time.Duration
	Factor           float64
	FailureThreshold int
	SessionCooldown  time.Duration
	FloorRPS         float64
}

func (c Config) withDefaults() Config {
	if c.MinDelay <= 0 {
		c.MinDelay = 2 * time.Second
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.CapDelay <= 0 {
		c.CapDelay = 120 * time.Second
	}
	if c.Factor < 1 {
		c.Factor = 2
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SessionCooldown <= 0 {
		c.SessionCooldown = 5 * time.Minute
	}
	return c
}

// Controller holds the shared backoff state. All mutation happens under a
// single mutex so concurrent workers report without racing each other.
type Controller struct {
	cfg    Config
	clock  scrape.Clock
	logger *zap.Logger
	floor  *rate.Limiter

	// sleep is injectable for tests; it must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	base          time.Duration
	delay         time.Duration
	failures      int
	cooldownUntil time.Time
}

// New constructs a Controller with a freshly sampled base delay.
func New(cfg Config, clock scrape.Clock, logger *zap.Logger) *Controller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var floor *rate.Limiter
	if cfg.FloorRPS > 0 {
		floor = rate.NewLimiter(rate.Limit(cfg.FloorRPS), 1)
	}
	c := &Controller{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		floor:  floor,
		sleep:  pause,
	}
	c.base = c.sampleBase()
	c.delay = c.base
	return c
}

// BeforeRequest blocks for the currently mandated delay. An active cooldown
// pauses the caller until it elapses, on top of the per-request delay.
func (c *Controller) BeforeRequest(ctx context.Context) error {
	c.mu.Lock()
	delay := c.delay
	var cooldown time.Duration
	if until := c.cooldownUntil; !until.IsZero() {
		if remaining := until.Sub(c.clock.Now()); remaining > 0 {
			cooldown = remaining
		} else {
			c.cooldownUntil = time.Time{}
		}
	}
	c.mu.Unlock()

	if cooldown > 0 {
		c.logger.Warn("session cooldown active, pausing all fetches",
			zap.Duration("remaining", cooldown),
		)
		telemetry.ObserveBackoffWait("cooldown", cooldown)
		if err := c.sleep(ctx, cooldown); err != nil {
			return err
		}
	}

	if delay > 0 {
		telemetry.ObserveBackoffWait("delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	if c.floor != nil {
		if err := c.floor.Wait(ctx); err != nil {
			return fmt.Errorf("pacing floor wait: %w", err)
		}
	}
	return nil
}

// Report feeds a fetch outcome back into the shared state. Success and
// NotFound reset the escalation (a 404 is the site answering, not blocking);
// Blocked and Timeout escalate it.
func (c *Controller) Report(outcome scrape.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case scrape.OutcomeBlocked, scrape.OutcomeTimeout:
		c.failures++
		escalated := time.Duration(float64(c.base) * math.Pow(c.cfg.Factor, float64(c.failures)))
		if escalated > c.cfg.CapDelay || escalated <= 0 {
			escalated = c.cfg.CapDelay
		}
		next := escalated + randomJitter(escalated/10)
		// The mandated delay never shrinks while failures accumulate.
		if next < c.delay {
			next = c.delay
		}
		c.delay = next
		if c.failures >= c.cfg.FailureThreshold && c.cooldownUntil.IsZero() {
			c.cooldownUntil = c.clock.Now().Add(c.cfg.SessionCooldown)
			c.logger.Warn("failure threshold crossed, entering session cooldown",
				zap.Int("consecutive_failures", c.failures),
				zap.Duration("cooldown", c.cfg.SessionCooldown),
			)
		}
	default:
		c.failures = 0
		c.base = c.sampleBase()
		c.delay = c.base
		c.cooldownUntil = time.Time{}
	}
}

// Snapshot returns the current delay and consecutive failure count.
func (c *Controller) Snapshot() (time.Duration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay, c.failures
}

// sampleBase draws a fresh delay uniformly from [MinDelay, MaxDelay] and
// perturbs it with small symmetric jitter.
func (c *Controller) sampleBase() time.Duration {
	span := c.cfg.MaxDelay - c.cfg.MinDelay
	base := c.cfg.MinDelay + randomJitter(span)
	jitter := randomJitter(base/10) - base/20
	base += jitter
	if base < c.cfg.MinDelay {
		base = c.cfg.MinDelay
	}
	return base
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
