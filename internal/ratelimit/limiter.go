package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one quota check. ResetAt is only meaningful
// when Allowed is false.
type Decision struct {
	Allowed bool
	ResetAt time.Time
}

// Limiter enforces a per-destination send quota over a rolling window.
// A consumed unit counts the attempt whether or not the send later
// succeeds; nothing is refunded.
type Limiter interface {
	CheckAndConsume(ctx context.Context, destination string) Decision
}

// AllowAll is the limiter used when no counter store is configured.
type AllowAll struct{}

func (AllowAll) CheckAndConsume(context.Context, string) Decision {
	return Decision{Allowed: true}
}
