// Package ratelimit wraps golang.org/x/time/rate into the per-provider
// token buckets §5 calls for (1 req/s discovery, 30 req/min historical).
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter gates calls to a single external provider.
type Limiter struct {
	limiter *rate.Limiter
}

// PerSecond builds a limiter allowing n requests per second, bursting by
// the same amount.
func PerSecond(n float64) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(n), max(1, int(n)))}
}

// PerMinute builds a limiter allowing n requests per minute.
func PerMinute(n float64) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(n/60), max(1, int(n)))}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
