package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{name: "first attempt returns base", attempt: 1, expected: 100 * time.Millisecond},
		{name: "second attempt doubles", attempt: 2, expected: 200 * time.Millisecond},
		{name: "third attempt doubles again", attempt: 3, expected: 400 * time.Millisecond},
		{name: "capped at max", attempt: 10, expected: max},
		{name: "attempt below one clamps to base", attempt: 0, expected: 100 * time.Millisecond},
		{name: "huge attempt does not overflow", attempt: 500, expected: max},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Exponential(base, max, tt.attempt))
		})
	}
}

func TestExponentialDelaysNeverDecrease(t *testing.T) {
	base := 50 * time.Millisecond
	max := 5 * time.Second
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := Exponential(base, max, attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, max)
		prev = d
	}
}

func TestJitterStaysWithinSpread(t *testing.T) {
	spread := 50 * time.Millisecond
	for i := 0; i < 100; i++ {
		j := Jitter(spread)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, spread)
	}
}

func TestJitterZeroSpread(t *testing.T) {
	assert.Equal(t, time.Duration(0), Jitter(0))
	assert.Equal(t, time.Duration(0), Jitter(-time.Second))
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCompletesShortDurations(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}
