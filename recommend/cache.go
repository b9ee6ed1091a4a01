package recommend

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores validated recommendations by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]Item, bool, error)
	Set(ctx context.Context, key string, items []Item, ttl time.Duration) error
}

// DefaultCacheSize bounds a MemoryCache built with a non-positive size.
const DefaultCacheSize = 10000

type cacheEntry struct {
	items   []Item
	expires time.Time
}

// MemoryCache is a process-local Cache holding at most size entries. The
// least recently used entry is evicted first and entries older than maxTTL
// are swept in the background. A Set ttl shorter than maxTTL is enforced on
// read; a zero maxTTL never sweeps.
type MemoryCache struct {
	lru *expirable.LRU[string, cacheEntry]
	now func() time.Time
}

func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, cacheEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Item, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return append([]Item(nil), e.items...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, items []Item, ttl time.Duration) error {
	e := cacheEntry{items: append([]Item(nil), items...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	return nil
}

// Len reports the number of entries held.
func (c *MemoryCache) Len() int { return c.lru.Len() }
