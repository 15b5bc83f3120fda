package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// Addr is host:port.
	Addr     string
	Password string
	DB       int

	// DialTimeout bounds connection establishment. Default: 3s.
	DialTimeout time.Duration

	// MaxTTL caps entry TTLs. Default: MaxTTL (24h).
	MaxTTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.MaxTTL == 0 {
		c.MaxTTL = MaxTTL
	}
}

// RedisCache is the Cache backend over a managed Redis instance.
//
// Entries carry the same storedAt/ttlSeconds envelope as every other
// backend, with the clamped TTL also applied natively so Redis reclaims
// memory on its own. Redis failures never propagate: reads degrade to
// misses, writes and deletes are logged and dropped.
type RedisCache struct {
	client  *redis.Client
	config  RedisConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewRedisCache creates a RedisCache and verifies connectivity once.
func NewRedisCache(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: NewMetrics(logger, "redis"),
	}, nil
}

// Get returns the payload for key, deleting it first if the envelope says it
// has expired (covers entries written before a MaxTTL reduction).
func (r *RedisCache) Get(ctx context.Context, key string, opts ...Option) ([]byte, bool) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)

	raw, err := r.client.Get(ctx, composed).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", zap.String("key", composed), zap.Error(err))
		}
		r.metrics.RecordMiss(ctx)
		return nil, false
	}

	var entry envelope
	if err := json.Unmarshal(raw, &entry); err != nil {
		r.logger.Warn("redis entry corrupt, dropping", zap.String("key", composed), zap.Error(err))
		r.client.Del(ctx, composed)
		r.metrics.RecordMiss(ctx)
		return nil, false
	}

	if entry.expired(timeNow()) {
		r.client.Del(ctx, composed)
		r.metrics.RecordExpiry(ctx)
		return nil, false
	}

	r.metrics.RecordHit(ctx)
	return entry.Data, true
}

// Set stores value under key with the clamped TTL. Failures are logged and
// swallowed.
func (r *RedisCache) Set(ctx context.Context, key string, value any, opts ...Option) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)
	ttl := ClampTTL(op.ttl, r.config.MaxTTL)

	entry, err := newEnvelope(value, ttl)
	if err != nil {
		r.logger.Warn("redis set failed", zap.String("key", composed), zap.Error(err))
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		r.logger.Warn("redis set failed", zap.String("key", composed), zap.Error(err))
		return
	}

	if err := r.client.Set(ctx, composed, payload, ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", zap.String("key", composed), zap.Error(err))
	}
}

// Delete removes key. Failures are logged and swallowed.
func (r *RedisCache) Delete(ctx context.Context, key string, opts ...Option) {
	op := applyOptions(opts)
	composed := ComposeKey(op.prefix, key)

	if err := r.client.Del(ctx, composed).Err(); err != nil {
		r.logger.Warn("redis delete failed", zap.String("key", composed), zap.Error(err))
	}
}

// ClearPrefix removes every key under "prefix:" via SCAN, avoiding the
// blocking KEYS command.
func (r *RedisCache) ClearPrefix(ctx context.Context, prefix string) {
	pattern := sanitizeKey(prefix) + ":*"

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			r.deleteBatch(ctx, keys)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	if len(keys) > 0 {
		r.deleteBatch(ctx, keys)
	}
}

func (r *RedisCache) deleteBatch(ctx context.Context, keys []string) {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("redis batch delete failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// Stats reports DBSIZE and used_memory. On failure it returns zero values
// with Connected=false rather than an error.
func (r *RedisCache) Stats(ctx context.Context) Stats {
	size, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{Connected: false}
	}

	stats := Stats{
		TotalKeys: int(size),
		Connected: true,
	}

	info, err := r.client.Info(ctx, "memory").Result()
	if err == nil {
		stats.MemoryUsage = parseUsedMemory(info)
	}
	return stats
}

// IsConnected pings the server.
func (r *RedisCache) IsConnected(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close releases the client connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// parseUsedMemory extracts used_memory from INFO memory output.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if value, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err == nil {
				return n
			}
			return 0
		}
	}
	return 0
}
