// Package ratelimit guards the LLM endpoint with a token-bucket limiter so a
// burst of classification/matching calls cannot overrun the provider's rate
// limit, grounded on golang.org/x/time/rate as used across the example pack.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with the constructor shape this module needs.
type Limiter struct {
	l *rate.Limiter
}

// New builds a Limiter allowing ratePerSecond sustained requests with a burst
// of burst.
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}
