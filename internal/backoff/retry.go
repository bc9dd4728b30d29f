// Package backoff provides the two waiting shapes this engine actually
// needs: polling a condition at a fixed interval (the dispatcher's
// admission control) and retrying an action a bounded number of times
// with a growing interval between tries (the recovery handler's retry
// strategy). Neither caller needs a pluggable policy interface, so
// there isn't one.
package backoff

import (
	"context"
	"time"
)

// Wait blocks for interval or returns ctx.Err() if ctx is canceled
// first, whichever happens sooner.
func Wait(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollUntil calls check at interval until it reports admitted or ctx is
// canceled. An error from check does not end the polling: it counts as
// "not admitted" and is retried at the next interval, since a transient
// sampling failure shouldn't permanently block admission. This is exactly the dispatcher's admission loop: there's
// no retry count or escalating delay, just "keep checking until there's
// room".
func PollUntil(ctx context.Context, interval time.Duration, check func(ctx context.Context) (admitted bool, err error)) error {
	for {
		admitted, err := check(ctx)
		if err == nil && admitted {
			return nil
		}
		if waitErr := Wait(ctx, interval); waitErr != nil {
			return waitErr
		}
	}
}

// Schedule retries action with exponentially growing waits between
// attempts, capped at MaxInterval, until it succeeds, ctx is canceled,
// or MaxAttempts tries have been made. MaxAttempts <= 0 means "try
// once" (no retrying) rather than unlimited, so a zero-value Schedule
// is a safe no-op default.
type Schedule struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// Retry runs action, retrying per s until it returns nil or the
// schedule/context gives out. It returns the last error seen.
func (s Schedule) Retry(ctx context.Context, action func(ctx context.Context) error) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	interval := s.InitialInterval
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := Wait(ctx, interval); err != nil {
				return err
			}
			interval *= 2
			if s.MaxInterval > 0 && interval > s.MaxInterval {
				interval = s.MaxInterval
			}
		}
		lastErr = action(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
