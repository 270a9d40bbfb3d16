package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Well-known keys stored per session.
const (
	KeyCart      = "cart"
	KeyOrders    = "userOrders"
	KeyDraft     = "devSetupOrder"
	KeyCurrency  = "currency"
	KeyNotices   = "notices"
	keyNamespace = "session:"
)

// DefaultTTL is the idle lifetime of session keys when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNoSession is returned when an operation is attempted without a session id.
var ErrNoSession = errors.New("session: id is required")

// ErrCorrupt wraps decode failures of stored values.
var ErrCorrupt = errors.New("session: stored value is corrupt")

// Storage keeps JSON values scoped to a session in Redis. Every write refreshes the TTL.
type Storage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStorage constructs a session store. A non-positive ttl selects DefaultTTL.
func NewStorage(client *redis.Client, prefix string, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Storage{client: client, prefix: prefix, ttl: ttl}
}

// Client exposes the underlying Redis client for collaborators that need list or lock primitives.
func (s *Storage) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// TTL returns the idle lifetime of session keys.
func (s *Storage) TTL() time.Duration {
	if s == nil {
		return DefaultTTL
	}
	return s.ttl
}

// Key returns the Redis key for a session value.
func (s *Storage) Key(sessionID, key string) string {
	prefix := ""
	if s != nil {
		prefix = s.prefix
	}
	return prefix + keyNamespace + sessionID + ":" + key
}

// GetJSON decodes the value stored under key into dst and reports whether it existed.
// Decode failures are returned wrapped in ErrCorrupt.
func (s *Storage) GetJSON(ctx context.Context, sessionID, key string, dst any) (bool, error) {
	if err := s.check(sessionID); err != nil {
		return false, err
	}
	data, err := s.client.Get(ctx, s.Key(sessionID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SetJSON stores v as JSON under key.
func (s *Storage) SetJSON(ctx context.Context, sessionID, key string, v any) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	return s.client.Set(ctx, s.Key(sessionID, key), data, s.ttl).Err()
}

// Delete removes the given keys. Missing keys are ignored.
func (s *Storage) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.Key(sessionID, k))
	}
	return s.client.Del(ctx, full...).Err()
}

// Touch extends the TTL of every listed key that exists.
func (s *Storage) Touch(ctx context.Context, sessionID string, keys ...string) error {
	if err := s.check(sessionID); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.Expire(ctx, s.Key(sessionID, k), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) check(sessionID string) error {
	if s == nil || s.client == nil {
		return errors.New("session: redis client not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return ErrNoSession
	}
	return nil
}
