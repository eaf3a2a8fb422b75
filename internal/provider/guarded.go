package provider

import (
	"context"

	"github.com/0Reliance/maeple/internal/breaker"
)

// GuardedClient wraps a Client with a circuit breaker. While the breaker is
// open, calls fail fast with breaker.ErrCircuitOpen and never reach the
// underlying client.
type GuardedClient struct {
	inner Client
	cb    *breaker.Breaker
}

// NewGuardedClient wraps inner with the given breaker.
func NewGuardedClient(inner Client, cb *breaker.Breaker) *GuardedClient {
	return &GuardedClient{inner: inner, cb: cb}
}

// CompleteText delegates through the breaker.
func (g *GuardedClient) CompleteText(ctx context.Context, prompt string) (string, error) {
	return breaker.Do(ctx, g.cb, func(ctx context.Context) (string, error) {
		return g.inner.CompleteText(ctx, prompt)
	})
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedClient) Breaker() *breaker.Breaker {
	return g.cb
}
