package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dishscout/dishscout/recommend"
)

var _ recommend.Cache = (*Cache)(nil)

// Cache is a Redis-backed recommend.Cache. Entries expire with Redis TTLs.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewCache(rdb redis.UniversalClient, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefixOrDefault(prefix)}
}

func (c *Cache) key(k string) string { return fmt.Sprintf("%s:cache:%s", c.prefix, k) }

func (c *Cache) Get(ctx context.Context, key string) ([]recommend.Item, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get cache: %w", err)
	}
	var items []recommend.Item
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached items: %w", err)
	}
	return items, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, items []recommend.Item, ttl time.Duration) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cached items: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(key), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set cache: %w", err)
	}
	return nil
}
