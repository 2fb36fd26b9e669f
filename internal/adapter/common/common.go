// Package common holds the small pieces every backend adapter shares:
// a timeout floor and a circuit breaker wrapper around the call.
package common

import (
	"context"
	"time"

	"github.com/WessleyAI/wessley-mvp/pkg/resilience"
)

// MinTimeout is the floor applied to an adapter call's default timeout; a
// parent context whose own deadline is tighter than this still wins.
const MinTimeout = 5 * time.Second

// WithTimeout returns a context bounded by at least floor (MinTimeout if
// zero) unless the parent context's own deadline is already tighter and
// must be respected, or def if the caller set no deadline at all.
func WithTimeout(ctx context.Context, def time.Duration) (context.Context, context.CancelFunc) {
	floor := MinTimeout
	if def > floor {
		floor = def
	}
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < floor {
			floor = remaining
		}
	}
	return context.WithTimeout(ctx, floor)
}

// NewBreaker constructs a circuit breaker with defaults suited to backend
// adapters: trip after 5 consecutive failures, half-open probe after 30s.
func NewBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       30 * time.Second,
		HalfOpenMax:   1,
	})
}
