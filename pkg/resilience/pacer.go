package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer throttles repeated calls against a rate-limited upstream. Wait blocks
// until the next call is allowed or the context is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// TokenBucketPacer paces calls with a token bucket.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewTokenBucketPacer creates a pacer allowing callsPerSecond sustained calls
// with the given burst size.
func NewTokenBucketPacer(callsPerSecond float64, burst int) *TokenBucketPacer {
	return &TokenBucketPacer{
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

// Wait blocks until a token is available
func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NopPacer never blocks. Used in tests.
type NopPacer struct{}

// Wait returns immediately
func (NopPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}
