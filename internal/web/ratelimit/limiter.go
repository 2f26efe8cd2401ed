// Package ratelimit throttles API clients. TokenBucket keeps state in
// process; RedisLimiter shares a sliding window across instances.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether the next request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info is the limit state after a call to Allow
type Info struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Remaining is the number of requests left in the current window
	Remaining int
	// ResetAt is when a rejected client may try again
	ResetAt time.Time
	Allowed bool
}

// RetryAfter returns the whole seconds until ResetAt, never negative
func (i *Info) RetryAfter(now time.Time) int64 {
	d := i.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
