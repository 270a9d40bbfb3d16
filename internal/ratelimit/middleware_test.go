package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/storefront/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("gate"),
			Window: time.Minute,
			Max:    1,
		},
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/gate/login", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")

	other := httptest.NewRequest(http.MethodPost, "/api/v1/gate/login", nil)
	other.RemoteAddr = "198.51.100.2:5555"
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	called := false
	handler := ratelimit.Handler{
		Limiter: failingLimiter{},
		Config:  ratelimit.Config{Key: func(*http.Request) string { return "err" }, Window: time.Second, Max: 1},
		OnError: func(error) { called = true },
	}
	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestFixedWindow(t *testing.T) {
	fixed := ratelimit.FixedWindow{Store: memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "test", CleanUpInterval: time.Minute})}
	ctx := context.Background()

	allowed, remaining, _, err := fixed.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)

	allowed, remaining, _, err = fixed.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 0, remaining)

	allowed, _, reset, err := fixed.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.True(t, reset.After(time.Now()))

	allowed, _, _, err = fixed.Allow(ctx, "other", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestNewStrategies(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	l, err := ratelimit.New("", client, "rl:")
	require.NoError(t, err)
	require.IsType(t, ratelimit.SlidingWindow{}, l)

	l, err = ratelimit.New(ratelimit.StrategyFixed, client, "rl:")
	require.NoError(t, err)
	require.IsType(t, ratelimit.FixedWindow{}, l)

	_, err = ratelimit.New("leaky", client, "rl:")
	require.Error(t, err)
}
