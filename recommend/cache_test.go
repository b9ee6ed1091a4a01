package recommend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, 0)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	items := sampleItems(2, "t", "r")
	require.NoError(t, c.Set(ctx, "k", items, time.Minute))
	items[0].Category = "mutated"

	got, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "Dish 0", got[0].Category)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry must expire at its ttl")
	assert.Zero(t, c.Len())
}

func TestMemoryCache_NoTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, 0)
	require.NoError(t, c.Set(ctx, "k", sampleItems(1, "t", "r"), 0))
	c.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryCache_SizeBound(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(100, time.Hour)
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), sampleItems(1, "t", "r"), time.Hour))
	}
	assert.Equal(t, 100, c.Len())

	_, ok, _ := c.Get(ctx, "k0")
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok, _ = c.Get(ctx, "k999")
	assert.True(t, ok)
}

func TestMemoryCache_SweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, 20*time.Millisecond)
	for i := 0; i < 500; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), sampleItems(1, "t", "r"), 20*time.Millisecond))
	}
	assert.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"expired entries must be dropped without being read")
}
