// Package ratelimit provides the shared upstream request governor.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Governor serializes provider calls so the combined request rate across all
// upstream paths (listing loop, explorer loop, cache refresh, backfill)
// never exceeds the configured ceiling. It enforces a minimum inter-call
// delay of 60s / maxPerMinute; with burst 1 there is no catch-up allowance
// after idle periods, which keeps the rate bounded over any sliding window.
type Governor struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// New creates a governor for the given per-minute ceiling.
// Values below 1 are clamped to 1.
func New(maxPerMinute int) *Governor {
	if maxPerMinute < 1 {
		maxPerMinute = 1
	}
	delay := time.Minute / time.Duration(maxPerMinute)
	return &Governor{
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		delay:   delay,
	}
}

// Acquire blocks until the caller may issue the next provider request.
// Returns the context error if ctx is cancelled while waiting.
func (g *Governor) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// MinDelay returns the enforced minimum inter-call delay.
func (g *Governor) MinDelay() time.Duration {
	return g.delay
}
