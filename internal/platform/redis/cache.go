// Package redis provides the Redis-backed session cache used in
// production deployments.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lightlogic3/popflow/internal/session"
)

// Cache implements session.Cache over a Redis client.
type Cache struct {
	client *redis.Client
}

var _ session.Cache = (*Cache)(nil)

// NewCache creates a cache over the given Redis client. The caller owns
// the client's lifecycle.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get implements session.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

// Set implements session.Cache. Values carry no TTL: session lifetime is
// governed by the idle-reap sweep, not by cache expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete implements session.Cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Keys implements session.Cache using SCAN rather than KEYS, so a large
// keyspace does not block the server.
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	return keys, nil
}
