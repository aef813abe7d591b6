// Package retry re-executes transactional units of work that fail with
// transient storage contention (deadlocks, serialization conflicts).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/schedops/shiftgen/pkg/db"
)

// ErrExhausted is returned when a unit of work keeps failing transiently
// after the configured number of attempts. It wraps the last underlying cause.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config bounds the retry loop
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; each subsequent retry
	// doubles it up to MaxBackoff, plus up to 50% jitter
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the retry bounds used when configuration leaves them unset
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// Runner executes units of work under the retry policy
type Runner struct {
	cfg Config

	// sleep is replaced in tests to avoid real delays
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Runner, filling unset config fields with defaults
func New(cfg Config) *Runner {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	return &Runner{cfg: cfg, sleep: sleepCtx}
}

// Do runs fn, retrying on transient storage errors with exponential backoff
// until it succeeds, fails fatally, or exhausts the attempt bound. fn must be
// safe to re-execute from scratch: the transaction it wraps rolls back fully
// on failure, so no partial side effects survive a failed attempt.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !db.IsTransient(err) {
			return err
		}
		last = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.cfg.MaxAttempts, last)
}

// backoff returns the delay before the given retry (1-based), doubling from
// BaseBackoff, capped at MaxBackoff, with up to 50% random jitter added.
func (r *Runner) backoff(retry int) time.Duration {
	d := r.cfg.BaseBackoff << (retry - 1)
	if d > r.cfg.MaxBackoff || d <= 0 {
		d = r.cfg.MaxBackoff
	}
	return d + time.Duration(rand.Int63n(int64(d)/2 + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
