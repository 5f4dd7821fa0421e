// Package retrycore implements the pipeline's shared retry, backoff,
// rate-limiting, and circuit-breaking behavior. Retried calls to GCS, the
// model API, and ffmpeg/ffprobe go through a single process-wide Core
// rather than ad hoc retry loops per port, so the breaker and rate-limit
// tables stay consistent across all callers. Calls made by fail-fast
// stages (the Validating probe, Finalizing cleanup) do not pass through it.
package retrycore

import (
	"context"
	"time"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

// Core is the process-wide handle combining the rate limiter and circuit
// breaker tables with the named backoff profiles. Construct one with New
// and share it; it holds no per-call state of its own.
type Core struct {
	breakers *breakerTable
	limiters *rateLimiterTable
}

// New constructs a Core with empty breaker and rate-limiter tables.
func New() *Core {
	return &Core{
		breakers: newBreakerTable(),
		limiters: newRateLimiterTable(),
	}
}

// Wait blocks until the sliding 60s window for serviceKey admits another
// call, sleeping and re-checking if the window is currently full. It
// returns early with ctx.Err() if ctx is canceled while waiting.
func (c *Core) Wait(ctx context.Context, serviceKey string) error {
	quota := QuotaFor(serviceKey)
	for {
		delay, ok := c.limiters.admitOrWait(serviceKey, quota, time.Now())
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// BreakerState reports the current circuit breaker state for a key, for
// status/observability callers.
func (c *Core) BreakerState(key string) BreakerState {
	return c.breakers.State(key)
}

// Do runs fn under the named backoff profile, gated by the circuit breaker
// for breakerKey and the rate limiter for rateKey. It retries fn while
// Classify(err) reports retryable, up to the profile's MaxAttempts, sleeping
// Profile.Delay(attempt) between attempts. If the breaker for breakerKey is
// open, Do returns an apierr CircuitOpen error without calling fn: a
// tripped breaker is checked before any attempt is made.
func (c *Core) Do(ctx context.Context, profileName, breakerKey, rateKey string, fn func(ctx context.Context) error) error {
	profile := ProfileOrDefault(profileName)

	var lastErr error
	for attempt := 1; attempt <= profile.MaxAttempts; attempt++ {
		if !c.breakers.Allow(breakerKey) {
			return apierr.CircuitOpen(breakerKey)
		}

		if rateKey != "" {
			if err := c.Wait(ctx, rateKey); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			c.breakers.RecordSuccess(breakerKey)
			return nil
		}

		lastErr = err
		c.breakers.RecordFailure(breakerKey)

		if !Classify(err) {
			return err
		}
		if attempt == profile.MaxAttempts {
			break
		}

		delay := profile.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
