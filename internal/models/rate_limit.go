package models

import (
	"context"
	"time"
)

// RateLimitCounter is one fixed window for a key. Count is only incremented
// while now <= WindowResetAt.
type RateLimitCounter struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"windowResetAt"`
}

// Decision is the outcome of one Take against a counter.
type Decision struct {
	Allowed bool
	Count   int
	ResetAt time.Time
}

// CounterStore applies the fixed-window algorithm atomically per key.
type CounterStore interface {
	Take(ctx context.Context, key string, max int, window time.Duration) (Decision, error)
	// Sweep deletes counters whose window has elapsed and returns how many.
	Sweep(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}
