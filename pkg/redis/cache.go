package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores raw upstream payloads shared between processes.
// It backs the in-process response cache as a second level.
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get returns the payload and its remaining TTL. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	if !c.client.Enabled() {
		return nil, 0, false, nil
	}

	fullKey := c.fullKey(key)
	pipe := c.client.Redis().Pipeline()
	getCmd := pipe.Get(ctx, fullKey)
	ttlCmd := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("cache get failed: %w", err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false, nil
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return nil, 0, false, nil
	}

	return data, ttl, true, nil
}

// Set stores a payload with TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Set(ctx, c.fullKey(key), value, ttl).Err()
}
