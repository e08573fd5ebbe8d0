// Package ratelimit counts requests per client in fixed windows.
// The memory store serves a single instance; the Redis store shares
// counters between instances.
package ratelimit

import (
	"context"
	"time"
)

// Store holds fixed-window counters
type Store interface {
	// Get returns the current count for key and when its window ends.
	// A missing or expired key reports zero.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// Increment adds one to key, opening a new window of length window when
	// none is active, and returns the new count and the window end.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Reset forgets key
	Reset(ctx context.Context, key string) error

	Close() error
}

// Result is the outcome of one Check
type Result struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}

// RetryAfter is how long a rejected client should wait
func (r *Result) RetryAfter() time.Duration {
	d := time.Until(r.ResetAt)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

// Check counts one request for key and reports whether it fits in limit
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, resetAt, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}
