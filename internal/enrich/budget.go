package enrich

import (
	"context"
	"errors"
	"math"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a token request can never fit in the
// budget window or the caller's context ends while waiting.
var ErrRateLimitExceeded = errors.New("enrich: rate limit exceeded")

// TokenBudget limits enrichment tokens over a rolling minute. It is shared by
// all concurrent lines of a batch.
type TokenBudget struct {
	limiter *rate.Limiter
	window  int
}

// NewTokenBudget allows tokensPerMinute tokens per minute with a burst of
// one full minute. A non-positive value disables the limit.
func NewTokenBudget(tokensPerMinute int) *TokenBudget {
	if tokensPerMinute <= 0 {
		return &TokenBudget{limiter: rate.NewLimiter(rate.Inf, 0), window: math.MaxInt}
	}
	return &TokenBudget{
		limiter: rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60), tokensPerMinute),
		window:  tokensPerMinute,
	}
}

// Acquire blocks until n tokens are available.
func (b *TokenBudget) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if n > b.window {
		return ErrRateLimitExceeded
	}
	if err := b.limiter.WaitN(ctx, n); err != nil {
		return errors.Join(ErrRateLimitExceeded, err)
	}
	return nil
}
