// Package pacing spaces consecutive submissions so the cadence looks human.
//
// Fixed-interval sending is the dominant signal providers use for bot
// detection; uniform-random delays plus a periodic long rest avoid it without
// per-provider tuning.
package pacing

import (
	"context"
	"math/rand"
	"time"

	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

// Config holds the delay bounds and the optional burst policy.
//
// A burst policy with BurstSize > 1 inserts a long rest drawn from
// [RestMin, RestMax] after every BurstSize-th wait.
type Config struct {
	NormalMin time.Duration
	NormalMax time.Duration

	BurstSize int
	RestMin   time.Duration
	RestMax   time.Duration
}

// Valid checks bound ordering. Zero bounds are allowed (no wait).
func (c Config) Valid() bool {
	if c.NormalMin > c.NormalMax {
		return false
	}
	if c.BurstSize > 1 && c.RestMin > c.RestMax {
		return false
	}
	return true
}

// Controller tracks the submission counter and executes interruptible waits.
// Not safe for concurrent use; one run owns one controller.
type Controller struct {
	cfg   Config
	count int

	log logx.Logger

	// rnd is injectable for tests; nil falls back to the global source.
	rnd *rand.Rand
}

func New(cfg Config, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{cfg: cfg, log: log}
	if cfg.BurstSize > 1 {
		log.Info("burst mode enabled",
			logx.Int("burst_size", cfg.BurstSize),
			logx.Duration("rest_min", cfg.RestMin),
			logx.Duration("rest_max", cfg.RestMax))
	}
	return c
}

// NextDelay advances the counter and draws the delay for this gap. Split from
// Wait so the draw itself is testable without sleeping.
func (c *Controller) NextDelay() (delay time.Duration, longRest bool) {
	c.count++
	if c.cfg.BurstSize > 1 && c.count%c.cfg.BurstSize == 0 {
		return c.uniform(c.cfg.RestMin, c.cfg.RestMax), true
	}
	return c.uniform(c.cfg.NormalMin, c.cfg.NormalMax), false
}

// Wait draws the next delay and sleeps it out, returning true if ctx was
// cancelled before the delay elapsed.
func (c *Controller) Wait(ctx context.Context) (cancelled bool) {
	if ctx.Err() != nil {
		return true
	}

	delay, longRest := c.NextDelay()
	if longRest {
		c.log.Info("burst rest", logx.Int("sent", c.cfg.BurstSize), logx.Duration("delay", delay))
	} else {
		c.log.Debug("pacing wait", logx.Duration("delay", delay))
	}

	return !SleepCtx(ctx, delay)
}

func (c *Controller) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo)
	var n int64
	if c.rnd != nil {
		n = c.rnd.Int63n(span + 1)
	} else {
		n = rand.Int63n(span + 1)
	}
	return lo + time.Duration(n)
}

// SleepCtx sleeps for d, returning false if ctx was cancelled first.
// A non-positive d returns immediately.
func SleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return false
	case <-tmr.C:
		return true
	}
}
