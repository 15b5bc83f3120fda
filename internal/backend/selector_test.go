package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidscoutlabs/matchd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.SweepInterval = config.Duration(-1)
	cfg.VectorStore.Chromem.Path = t.TempDir()
	return cfg
}

func newTestSelector(t *testing.T, cfg *config.Config) *Selector {
	t.Helper()
	s := NewSelector(cfg, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSelectorCacheDefaultsToMemory(t *testing.T) {
	s := newTestSelector(t, testConfig(t))

	c, res := s.Cache(context.Background())
	require.NotNil(t, c)
	assert.Equal(t, "memory", res.Provider)
	assert.False(t, res.FellBack)
}

func TestSelectorCacheRedisUnconfiguredFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Provider = "redis"
	s := newTestSelector(t, cfg)

	c, res := s.Cache(context.Background())
	require.NotNil(t, c)
	assert.Equal(t, "memory", res.Provider)
	assert.True(t, res.FellBack)
	assert.Equal(t, "redis", res.From)
}

func TestSelectorCacheRedisUnreachableFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Provider = "redis"
	// Reserved TEST-NET address: connection refused or timeout, never a server.
	cfg.Cache.Redis.Addr = "192.0.2.1:6379"
	cfg.Cache.Redis.DialTimeout = config.Duration(200 * time.Millisecond)
	s := newTestSelector(t, cfg)

	c, res := s.Cache(context.Background())
	require.NotNil(t, c)
	assert.Equal(t, "memory", res.Provider)
	assert.True(t, res.FellBack)
	assert.Contains(t, res.Reason, "unreachable")
}

func TestSelectorCacheMemoized(t *testing.T) {
	s := newTestSelector(t, testConfig(t))
	ctx := context.Background()

	first, _ := s.Cache(ctx)
	second, _ := s.Cache(ctx)
	assert.Same(t, first, second)
}

func TestSelectorVectorChromem(t *testing.T) {
	s := newTestSelector(t, testConfig(t))

	store, res, err := s.Vector(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "chromem", res.Provider)
	assert.False(t, res.FellBack)
}

func TestSelectorVectorQdrantUnconfiguredFallsBackToChromem(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Provider = "qdrant"
	s := newTestSelector(t, cfg)

	store, res, err := s.Vector(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "chromem", res.Provider)
	assert.True(t, res.FellBack)
	assert.Equal(t, "qdrant", res.From)
}

func TestSelectorVectorUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Provider = "pinecone"
	s := newTestSelector(t, cfg)
	ctx := context.Background()

	_, _, err := s.Vector(ctx)
	require.ErrorIs(t, err, ErrVectorNotConfigured)

	// The failure is memoized; later calls fail identically.
	_, _, err2 := s.Vector(ctx)
	assert.Equal(t, err, err2)
}

func TestSelectorReset(t *testing.T) {
	s := newTestSelector(t, testConfig(t))
	ctx := context.Background()

	first, _ := s.Cache(ctx)
	s.Reset()
	second, _ := s.Cache(ctx)
	assert.NotSame(t, first, second)
}
