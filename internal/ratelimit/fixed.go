package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow counts events per calendar window through a ulule limiter store.
type FixedWindow struct {
	Store limiter.Store
}

// NewRedisFixedWindow stores fixed window counters in Redis under prefix.
func NewRedisFixedWindow(client *redis.Client, prefix string) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Store: store}, nil
}

// Allow increments the counter for key and reports whether it is within max for the window.
func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lim := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(max)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
