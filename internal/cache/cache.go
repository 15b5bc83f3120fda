// Package cache defines the key-value cache port and its backends.
//
// Every stored value is wrapped in an envelope carrying storedAt/ttlSeconds
// so any backend can lazily expire entries on read, whether or not it has
// native TTL support. Cache failures are never surfaced to callers: a write
// or delete that fails is logged and swallowed, and a failed read is a miss.
// A cache outage degrades callers to uncached, not to error.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// MaxTTL is the default upper bound on entry TTLs.
const MaxTTL = 24 * time.Hour

// DefaultTTL applies when a Set does not specify a TTL.
const DefaultTTL = 5 * time.Minute

// Stats describes the current state of a cache backend.
type Stats struct {
	// TotalKeys is the number of stored keys (including not-yet-swept
	// expired entries).
	TotalKeys int `json:"total_keys"`

	// MemoryUsage is the approximate payload size in bytes.
	MemoryUsage int64 `json:"memory_usage"`

	// Connected reports backend reachability at the time of the call.
	Connected bool `json:"connected"`
}

// Cache is the port implemented by all cache backends.
//
// Get returns the stored JSON payload and whether it was found. Reads of an
// expired entry delete it and report a miss. Set and Delete do not return
// errors; backends log and swallow failures.
type Cache interface {
	Get(ctx context.Context, key string, opts ...Option) ([]byte, bool)
	Set(ctx context.Context, key string, value any, opts ...Option)
	Delete(ctx context.Context, key string, opts ...Option)
	ClearPrefix(ctx context.Context, prefix string)
	Stats(ctx context.Context) Stats
	IsConnected(ctx context.Context) bool
	Close() error
}

// Option configures a single cache operation.
type Option func(*opConfig)

type opConfig struct {
	prefix string
	ttl    time.Duration
}

// WithPrefix namespaces the key as "prefix:key".
func WithPrefix(prefix string) Option {
	return func(c *opConfig) { c.prefix = prefix }
}

// WithTTL overrides the default entry TTL. Values are clamped to
// [1s, MaxTTL] by the backend.
func WithTTL(ttl time.Duration) Option {
	return func(c *opConfig) { c.ttl = ttl }
}

func applyOptions(opts []Option) opConfig {
	var c opConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// GetJSON reads and unmarshals a cached value. A payload that fails to
// unmarshal is treated as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string, opts ...Option) (T, bool) {
	var value T
	raw, ok := c.Get(ctx, key, opts...)
	if !ok {
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false
	}
	return value, true
}

// envelope wraps every stored value so expiry works uniformly across
// backends.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	StoredAt   time.Time       `json:"stored_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

func (e envelope) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > time.Duration(e.TTLSeconds)*time.Second
}

func newEnvelope(value any, ttl time.Duration) (envelope, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return envelope{}, err
	}
	return envelope{
		Data:       data,
		StoredAt:   timeNow(),
		TTLSeconds: int64(ttl / time.Second),
	}, nil
}

// ClampTTL bounds a TTL to [1s, max]. Zero and negative TTLs fall back to
// DefaultTTL before clamping.
func ClampTTL(ttl, max time.Duration) time.Duration {
	if max <= 0 {
		max = MaxTTL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	if ttl > max {
		ttl = max
	}
	return ttl
}

// ComposeKey joins an optional prefix and key as "prefix:key" and sanitizes
// the result to a restricted character set so it is safe for any backend.
func ComposeKey(prefix, key string) string {
	if prefix != "" {
		key = prefix + ":" + key
	}
	return sanitizeKey(key)
}

// sanitizeKey replaces characters outside [a-zA-Z0-9:_.-] with underscores.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ':' || r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
