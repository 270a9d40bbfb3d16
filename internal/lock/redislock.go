package lock

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/common"
)

// Lock scopes. Checkout holds ScopeCart while saving the order under ScopeOrders, so the
// two never share a key.
const (
	ScopeCart   = "cart"
	ScopeOrders = "orders"
)

const (
	// DefaultSessionTTL bounds how long a session mutation may hold its lock.
	DefaultSessionTTL = 5 * time.Second
	// DefaultAcquireTimeout bounds how long a caller waits for a held lock.
	DefaultAcquireTimeout = 3 * time.Second

	maxRetryBackoff = 250 * time.Millisecond
)

// ErrBusy is returned when a lock stays held past the acquire timeout.
var ErrBusy = common.NewAppError("SESSION_BUSY", "session is busy, retry shortly", http.StatusConflict, nil)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker serialises read-modify-write cycles on per-session Redis state.
type Locker struct {
	R              *redis.Client
	RetryBackoff   time.Duration
	AcquireTimeout time.Duration
	Prefix         string
}

// SessionKey returns the lock key guarding one kind of state of a session, e.g. "lock:cart:{sid}".
func (l Locker) SessionKey(scope, sessionID string) string {
	return l.Prefix + "lock:" + scope + ":" + sessionID
}

// WithSession runs fn while holding the session lock for scope using DefaultSessionTTL.
func (l Locker) WithSession(ctx context.Context, scope, sessionID string, fn func(context.Context) error) error {
	return l.WithLock(ctx, l.SessionKey(scope, sessionID), DefaultSessionTTL, fn)
}

// WithLock runs fn while holding key. The lock is released when fn returns, error or not.
// Waiting stops at the first of ctx cancellation (ctx.Err()) or AcquireTimeout (ErrBusy).
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	timeout := l.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		wait := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return "", ctx.Err()
		case <-deadline.C:
			wait.Stop()
			return "", ErrBusy
		case <-wait.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
