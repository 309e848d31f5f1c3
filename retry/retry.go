// Package retry implements capped exponential backoff with jitter.
// The database-backed stores use it to ride out transient failures,
// mainly Connect pings against a database that is still coming up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config is a backoff policy. Zero or negative fields are normalized
// to the DefaultConfig values before use.
type Config struct {
	// MaxRetries bounds the retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the pause before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the pause between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the pause after every failed attempt.
	Multiplier float64

	// Jitter spreads each pause by up to the given fraction in either
	// direction, so restarted replicas do not reconnect in lockstep.
	// Valid range is 0 to 1.
	Jitter float64

	// IsRetryable classifies errors. Returning false stops the loop
	// and surfaces the error as is. A nil classifier retries everything.
	IsRetryable func(error) bool
}

// DefaultConfig is the policy the stores start from: three retries,
// 100ms growing to a 30s cap, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Jitter:         0.1,
	}
}

// ErrExhausted marks a failure that survived every allowed attempt.
// The underlying error stays reachable through errors.Is and errors.As.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Do runs op until it succeeds, the policy is exhausted, the error is
// classified non-retryable, or ctx ends. The pause between attempts
// starts at InitialBackoff and multiplies up to MaxBackoff.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	cfg = cfg.normalized()

	delay := cfg.InitialBackoff
	var err error
	for attempt := 0; ; attempt++ {
		if cause := ctx.Err(); cause != nil {
			if err != nil {
				return fmt.Errorf("%w after %d attempts: %w", cause, attempt, err)
			}
			return cause
		}

		if err = op(ctx); err == nil {
			return nil
		}
		if cfg.IsRetryable != nil && !cfg.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts: %w", ctx.Err(), attempt+1, err)
		case <-time.After(jittered(delay, cfg.Jitter)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Jitter > 1 {
		c.Jitter = 1
	}
	return c
}

func jittered(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	spread := float64(delay) * jitter
	return time.Duration(float64(delay) + spread*(2*rand.Float64()-1))
}
