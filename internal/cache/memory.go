package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryConfig configures the in-process cache backend.
type MemoryConfig struct {
	// MaxTTL caps entry TTLs. Default: MaxTTL (24h).
	MaxTTL time.Duration

	// SweepInterval is how often expired entries are removed even when
	// never re-read. Zero disables the sweeper (lazy expiry on read still
	// applies). Default: 5m.
	SweepInterval time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *MemoryConfig) ApplyDefaults() {
	if c.MaxTTL == 0 {
		c.MaxTTL = MaxTTL
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Minute
	}
}

// MemoryCache is the in-process Cache backend. Expired entries are removed
// lazily on read and by a periodic sweep.
type MemoryCache struct {
	config  MemoryConfig
	logger  *zap.Logger
	metrics *Metrics

	mu      sync.RWMutex
	entries map[string]envelope

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryCache creates a MemoryCache and starts its sweeper.
func NewMemoryCache(config MemoryConfig, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	c := &MemoryCache{
		config:  config,
		logger:  logger,
		metrics: NewMetrics(logger, "memory"),
		entries: make(map[string]envelope),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if config.SweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.doneCh)
	}

	return c
}

// Get returns the payload for key, deleting it first if it has expired.
func (c *MemoryCache) Get(ctx context.Context, key string, opts ...Option) ([]byte, bool) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)

	c.mu.RLock()
	entry, ok := c.entries[composed]
	c.mu.RUnlock()

	if !ok {
		c.metrics.RecordMiss(ctx)
		return nil, false
	}

	if entry.expired(timeNow()) {
		c.mu.Lock()
		// Re-check under write lock; a concurrent Set may have refreshed it.
		if current, still := c.entries[composed]; still && current.expired(timeNow()) {
			delete(c.entries, composed)
		}
		c.mu.Unlock()
		c.metrics.RecordExpiry(ctx)
		return nil, false
	}

	c.metrics.RecordHit(ctx)
	return entry.Data, true
}

// Set stores value under key. Marshal failures are logged and swallowed.
func (c *MemoryCache) Set(ctx context.Context, key string, value any, opts ...Option) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)
	ttl := ClampTTL(op.ttl, c.config.MaxTTL)

	entry, err := newEnvelope(value, ttl)
	if err != nil {
		c.logger.Warn("cache set failed", zap.String("key", composed), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.entries[composed] = entry
	c.mu.Unlock()
}

// Delete removes key if present.
func (c *MemoryCache) Delete(ctx context.Context, key string, opts ...Option) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)

	c.mu.Lock()
	delete(c.entries, composed)
	c.mu.Unlock()
}

// ClearPrefix removes every entry under "prefix:".
func (c *MemoryCache) ClearPrefix(ctx context.Context, prefix string) {
	scope := sanitizeKey(prefix) + ":"

	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, scope) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Stats reports key count and approximate payload size.
func (c *MemoryCache) Stats(ctx context.Context) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var bytes int64
	for _, entry := range c.entries {
		bytes += int64(len(entry.Data))
	}
	return Stats{
		TotalKeys:   len(c.entries),
		MemoryUsage: bytes,
		Connected:   true,
	}
}

// IsConnected always reports true for the in-process backend.
func (c *MemoryCache) IsConnected(ctx context.Context) bool {
	return true
}

// Close stops the sweeper. The cache remains usable afterwards; entries are
// then expired on read only.
func (c *MemoryCache) Close() error {
	select {
	case <-c.stopCh:
		// already closed
	default:
		close(c.stopCh)
	}
	<-c.doneCh
	return nil
}

func (c *MemoryCache) sweepLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes entries that expired but were never re-read, bounding memory
// for write-once keys.
func (c *MemoryCache) sweep() {
	now := timeNow()

	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.RecordSweep(context.Background(), removed)
		c.logger.Debug("swept expired cache entries", zap.Int("removed", removed))
	}
}
