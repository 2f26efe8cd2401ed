package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBucket(capacity int, window time.Duration) (*TokenBucket, *clock) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tb := NewTokenBucket(TokenBucketConfig{Capacity: capacity, Window: window})
	tb.now = c.Now
	return tb, c
}

func TestTokenBucketAllow(t *testing.T) {
	tb, _ := newTestBucket(3, time.Minute)
	defer tb.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		info, err := tb.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, 3-i, info.Remaining)
	}

	info, err := tb.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)

	other, err := tb.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, 2, tb.Len())
}

func TestTokenBucketRefill(t *testing.T) {
	tb, clk := newTestBucket(6, time.Minute)
	defer tb.Close()

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := tb.Allow(ctx, "a")
		require.NoError(t, err)
	}

	info, err := tb.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, info.Allowed)
	// one token every 10s
	assert.Equal(t, clk.Now().Add(10*time.Second), info.ResetAt)
	assert.Equal(t, int64(10), info.RetryAfter(clk.Now()))

	clk.Advance(10 * time.Second)
	info, err = tb.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	clk.Advance(time.Hour)
	info, err = tb.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 5, info.Remaining, "refill is capped at capacity")
}

func TestTokenBucketSweep(t *testing.T) {
	tb, clk := newTestBucket(2, time.Minute)
	defer tb.Close()

	_, err := tb.Allow(context.Background(), "a")
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	tb.sweep()
	assert.Equal(t, 1, tb.Len())

	clk.Advance(time.Minute)
	tb.sweep()
	assert.Equal(t, 0, tb.Len())
}

func TestTokenBucketDefaults(t *testing.T) {
	tb := NewTokenBucket(TokenBucketConfig{CleanupInterval: time.Millisecond})
	defer tb.Close()

	info, err := tb.Allow(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 100, info.Limit)
	assert.NoError(t, tb.Close(), "Close is idempotent")
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(0), (&Info{ResetAt: now.Add(-time.Second)}).RetryAfter(now))
	assert.Equal(t, int64(2), (&Info{ResetAt: now.Add(1500 * time.Millisecond)}).RetryAfter(now))
}
