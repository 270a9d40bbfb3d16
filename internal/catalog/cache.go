package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/resilience"
)

// DefaultSearchTTL is how long a cached search result stays valid.
const DefaultSearchTTL = time.Hour

// Cache wraps Redis helpers for JSON payloads. A nil Cache is a no-op.
// While the breaker is open reads miss and writes are dropped.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	breaker *resilience.Breaker
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

// WithBreaker guards Redis calls with b.
func (c *Cache) WithBreaker(b *resilience.Breaker) *Cache {
	c.breaker = b
	return c
}

// SearchKey returns the cache key for a normalised search query.
func (c *Cache) SearchKey(query string) string {
	prefix := ""
	if c != nil {
		prefix = c.prefix
	}
	return prefix + "catalog:search:" + common.HashKey(query)
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	var data []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var getErr error
		data, getErr = c.client.Get(ctx, key).Bytes()
		if errors.Is(getErr, redis.Nil) {
			return nil
		}
		return getErr
	})
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, data, c.ttl).Err()
	})
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return nil
	}
	return err
}
