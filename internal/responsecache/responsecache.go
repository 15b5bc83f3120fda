// Package responsecache memoizes expensive chat, vector-search, and
// embedding results for a short window.
//
// Keys are deterministic, order-preserving content hashes of the triggering
// request, so an identical request within the TTL is served from cache
// without re-invoking the scorer or the embedding gateway. Storage rides on
// the cache port; when that resolves to the memory backend, its periodic
// sweep bounds memory for entries that are written but never re-read.
package responsecache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/bidscoutlabs/matchd/internal/cache"
	"github.com/bidscoutlabs/matchd/internal/vectorstore"
)

// Per-kind key prefixes.
const (
	chatPrefix   = "chat"
	searchPrefix = "vsearch"
	embedPrefix  = "embed"
)

// Config holds the per-kind TTLs.
type Config struct {
	ChatTTL      time.Duration // default 5m
	SearchTTL    time.Duration // default 10m
	EmbeddingTTL time.Duration // default 30m
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChatTTL == 0 {
		c.ChatTTL = 5 * time.Minute
	}
	if c.SearchTTL == 0 {
		c.SearchTTL = 10 * time.Minute
	}
	if c.EmbeddingTTL == 0 {
		c.EmbeddingTTL = 30 * time.Minute
	}
}

// Cache is the response/query cache.
type Cache struct {
	backend cache.Cache
	config  Config
}

// New creates a response cache over the given backend.
func New(backend cache.Cache, config Config) *Cache {
	config.ApplyDefaults()
	return &Cache{backend: backend, config: config}
}

// hashKey builds an order-preserving, deterministic key from the request
// parts: each part is length-prefixed before hashing so ("ab","c") and
// ("a","bc") never collide.
func hashKey(parts ...string) string {
	h := sha256.New()
	var length [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(length[:], uint64(len(part)))
		h.Write(length[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChatKey derives the cache key for a chat response.
func ChatKey(lastMessage, profileID, provider, model string) string {
	return hashKey(lastMessage, profileID, provider, model)
}

// SearchKey derives the cache key for a vector-search result set.
func SearchKey(query, profileID string, limit int) string {
	return hashKey(query, profileID, strconv.Itoa(limit))
}

// EmbeddingKey derives the cache key for an embedding.
func EmbeddingKey(text string) string {
	return hashKey(text)
}

// GetChat returns a cached chat response.
func (c *Cache) GetChat(ctx context.Context, key string) (string, bool) {
	return cache.GetJSON[string](ctx, c.backend, key, cache.WithPrefix(chatPrefix))
}

// SetChat caches a chat response for the chat TTL.
func (c *Cache) SetChat(ctx context.Context, key, response string) {
	c.backend.Set(ctx, key, response,
		cache.WithPrefix(chatPrefix), cache.WithTTL(c.config.ChatTTL))
}

// GetSearch returns a cached vector-search result set.
func (c *Cache) GetSearch(ctx context.Context, key string) ([]vectorstore.QueryResult, bool) {
	return cache.GetJSON[[]vectorstore.QueryResult](ctx, c.backend, key, cache.WithPrefix(searchPrefix))
}

// SetSearch caches a vector-search result set for the search TTL.
func (c *Cache) SetSearch(ctx context.Context, key string, results []vectorstore.QueryResult) {
	c.backend.Set(ctx, key, results,
		cache.WithPrefix(searchPrefix), cache.WithTTL(c.config.SearchTTL))
}

// GetEmbedding returns a cached embedding.
func (c *Cache) GetEmbedding(ctx context.Context, key string) ([]float32, bool) {
	return cache.GetJSON[[]float32](ctx, c.backend, key, cache.WithPrefix(embedPrefix))
}

// SetEmbedding caches an embedding for the embedding TTL.
func (c *Cache) SetEmbedding(ctx context.Context, key string, vector []float32) {
	c.backend.Set(ctx, key, vector,
		cache.WithPrefix(embedPrefix), cache.WithTTL(c.config.EmbeddingTTL))
}

// Clear drops every cached response of every kind.
func (c *Cache) Clear(ctx context.Context) {
	c.backend.ClearPrefix(ctx, chatPrefix)
	c.backend.ClearPrefix(ctx, searchPrefix)
	c.backend.ClearPrefix(ctx, embedPrefix)
}
