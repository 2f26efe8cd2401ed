package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewRedisLimiterInvalidConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		name        string
		config      RedisConfig
		expectedErr string
	}{
		{"nil client", RedisConfig{Limit: 10, Window: time.Minute}, "redis client is required"},
		{"zero limit", RedisConfig{Client: client, Window: time.Minute}, "limit must be greater than 0"},
		{"negative window", RedisConfig{Client: client, Limit: 10, Window: -time.Second}, "window must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedisLimiter(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestRedisLimiterAllow(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter, err := NewRedisLimiter(RedisConfig{Client: client, Limit: 3, Window: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		info, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "request %d", i)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 3-i, info.Remaining)
	}

	info, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.True(t, info.ResetAt.After(time.Now()))

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.True(t, mr.Exists("datarest:ratelimit:10.0.0.1"))
}

func TestRedisLimiterReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter, err := NewRedisLimiter(RedisConfig{Client: client, Limit: 1, Window: time.Minute, Prefix: "rl:"})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	info, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, info.Allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))

	info, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	limiter, err := NewRedisLimiter(RedisConfig{Client: client, Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	mr.Close()

	_, err = limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}
