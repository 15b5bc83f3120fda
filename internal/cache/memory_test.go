package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T) *MemoryCache {
	t.Helper()
	// Sweeper disabled; expiry is driven through timeNow.
	c := NewMemoryCache(MemoryConfig{SweepInterval: -1}, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	c.Set(ctx, "greeting", "hello")

	value, ok := GetJSON[string](ctx, c, "greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", value)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemoryCachePrefixIsolation(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", "plain")
	c.Set(ctx, "k", "prefixed", WithPrefix("chat"))

	plain, ok := GetJSON[string](ctx, c, "k")
	require.True(t, ok)
	assert.Equal(t, "plain", plain)

	prefixed, ok := GetJSON[string](ctx, c, "k", WithPrefix("chat"))
	require.True(t, ok)
	assert.Equal(t, "prefixed", prefixed)
}

func TestMemoryCacheLazyExpiry(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	c.Set(ctx, "k", "v", WithTTL(time.Minute))

	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	// Jump past the TTL; the read must miss and remove the entry.
	timeNow = func() time.Time { return base.Add(2 * time.Minute) }

	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats(ctx).TotalKeys)
}

func TestMemoryCacheSweep(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return base }
	defer func() { timeNow = time.Now }()

	c.Set(ctx, "short", "v", WithTTL(time.Minute))
	c.Set(ctx, "long", "v", WithTTL(time.Hour))

	timeNow = func() time.Time { return base.Add(10 * time.Minute) }
	c.sweep()

	stats := c.Stats(ctx)
	assert.Equal(t, 1, stats.TotalKeys)
	_, ok := c.Get(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	c.Delete(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheClearPrefix(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	c.Set(ctx, "a", "1", WithPrefix("chat"))
	c.Set(ctx, "b", "2", WithPrefix("chat"))
	c.Set(ctx, "a", "3", WithPrefix("vsearch"))

	c.ClearPrefix(ctx, "chat")

	_, ok := c.Get(ctx, "a", WithPrefix("chat"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b", WithPrefix("chat"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, "a", WithPrefix("vsearch"))
	assert.True(t, ok)
}

func TestMemoryCacheStats(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	stats := c.Stats(ctx)
	assert.Equal(t, 0, stats.TotalKeys)
	assert.True(t, stats.Connected)

	c.Set(ctx, "k", "value")
	stats = c.Stats(ctx)
	assert.Equal(t, 1, stats.TotalKeys)
	assert.Greater(t, stats.MemoryUsage, int64(0))
}

func TestMemoryCacheCloseIdempotent(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{SweepInterval: time.Minute}, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Still usable after Close; only the sweeper stops.
	ctx := context.Background()
	c.Set(ctx, "k", "v")
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryCacheCorruptValueSwallowed(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	// Unmarshalable value: Set logs and swallows, nothing is stored.
	c.Set(ctx, "bad", func() {})

	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
}
