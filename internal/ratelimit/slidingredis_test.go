package ratelimit_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/ratelimit"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	limiter := ratelimit.SlidingWindow{Client: client, Prefix: "test:"}
	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, max-(i+1), remaining)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)

	require.True(t, mr.Exists("test:key"))
	mr.FastForward(window)
	require.False(t, mr.Exists("test:key"))

	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingWindowDisabled(t *testing.T) {
	allowed, remaining, _, err := ratelimit.SlidingWindow{}.Allow(context.Background(), "key", time.Second, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}

func TestSlidingWindowRejectionsDoNotExtend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.SlidingWindow{Client: client, Prefix: "sf:", Now: func() time.Time { return now }}
	ctx := context.Background()

	allowed, _, reset, err := limiter.Allow(ctx, "gate:203.0.113.7", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, now.Add(time.Minute), reset)

	now = now.Add(40 * time.Second)
	allowed, _, reset, err = limiter.Allow(ctx, "gate:203.0.113.7", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, now.Add(20*time.Second), reset, "reset tracks the oldest admitted attempt")

	now = now.Add(21 * time.Second)
	allowed, _, _, err = limiter.Allow(ctx, "gate:203.0.113.7", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}
