package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache holds short-lived coordination keys in Redis.
type Cache struct {
	client store
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Claim atomically takes ownership of key for ttl. It reports false when
// another holder already claimed it.
func (c *Cache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache claim %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so the key can be processed again.
func (c *Cache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache release %s: %w", key, err)
	}
	return nil
}
