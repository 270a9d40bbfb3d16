package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims the window, records the attempt only when it fits and reports
// {allowed, count, resetMillis}. Rejected attempts do not extend the window.
var slidingScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < max then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local reset = now + window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// SlidingWindow counts attempts in a rolling window kept in a Redis sorted set.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records an attempt for key when fewer than max happened within window.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), max, uuid.NewString()).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	remaining = max - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return res[0] == 1, remaining, time.UnixMilli(res[2]), nil
}
