// Package backoff provides the capped exponential retry delays used by the
// user validation client and the broker reconnect loop.
package backoff

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^(attempt-1), capped at max. Attempt numbers
// start at 1; attempt <= 1 returns base.
func Exponential(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}

	delay := base << shift
	// Overflow collapses to a negative duration; treat it as capped.
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// Jitter returns a random duration in [0, spread). Randomised delays keep
// concurrent callers from retrying in lockstep.
func Jitter(spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)))
	if err != nil {
		return spread / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for the given duration or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
