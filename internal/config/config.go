// Package config provides configuration loading for matchd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for matchd.
type Config struct {
	Logging       LoggingConfig       `koanf:"logging"`
	Cache         CacheConfig         `koanf:"cache"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	ResponseCache ResponseCacheConfig `koanf:"response_cache"`
	Matching      MatchingConfig      `koanf:"matching"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// CacheConfig selects and configures the key-value cache backend.
type CacheConfig struct {
	// Provider is "memory" or "redis". Empty defaults to memory.
	Provider string `koanf:"provider"`

	// MaxTTL caps entry TTLs. Default: 24h.
	MaxTTL Duration `koanf:"max_ttl"`

	// SweepInterval is how often the memory backend removes expired
	// entries that were never re-read. Default: 5m.
	SweepInterval Duration `koanf:"sweep_interval"`

	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Addr is host:port. Empty means Redis is not configured.
	Addr     string `koanf:"addr"`
	Password Secret `koanf:"password"`
	DB       int    `koanf:"db"`

	// DialTimeout bounds the reachability probe at selection time.
	// Default: 3s.
	DialTimeout Duration `koanf:"dial_timeout"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	// Provider is "chromem" or "qdrant". Empty defaults to chromem.
	Provider string `koanf:"provider"`

	// Dimension is the deployment-wide vector dimension. Vectors are
	// zero-padded or truncated to this length at the port boundary.
	// Default: 1536.
	Dimension int `koanf:"dimension"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/matchd/vectorstore".
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Empty means Qdrant is not
	// configured.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334, not the 6333 REST port).
	Port int `koanf:"port"`

	APIKey Secret `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// Configured reports whether the Qdrant backend is fully specified.
func (c QdrantConfig) Configured() bool {
	return c.Host != ""
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// BaseURL is an OpenAI-compatible endpoint. Empty uses the OpenAI
	// default.
	BaseURL string `koanf:"base_url"`
	APIKey  Secret `koanf:"api_key"`

	// Model is the embedding model name. Default: text-embedding-3-small.
	Model string `koanf:"model"`

	// Dimension must match VectorStore.Dimension. Default: 1536.
	Dimension int `koanf:"dimension"`

	// RequestsPerSecond rate-limits provider calls. Default: 10.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ResponseCacheConfig holds TTLs for the response/query cache. Expired
// entries are cleaned up by the underlying cache backend (the memory
// backend's sweep runs at cache.sweep_interval).
type ResponseCacheConfig struct {
	ChatTTL      Duration `koanf:"chat_ttl"`      // default 5m
	SearchTTL    Duration `koanf:"search_ttl"`    // default 10m
	EmbeddingTTL Duration `koanf:"embedding_ttl"` // default 30m
}

// MatchingConfig tunes the matching loop and alert store.
type MatchingConfig struct {
	// MinMatchScore is the score threshold for alerting. Default: 70.
	MinMatchScore float64 `koanf:"min_match_score"`

	// CheckInterval is the matching cycle period. Default: 5m.
	CheckInterval Duration `koanf:"check_interval"`

	// MaxAlertsPerProfile bounds the per-profile alert store. Default: 10.
	MaxAlertsPerProfile int `koanf:"max_alerts_per_profile"`

	// MaxCandidates caps the corpus slice fetched per cycle. Default: 500.
	MaxCandidates int `koanf:"max_candidates"`

	// OpportunityCollection is the corpus collection name.
	// Default: "opportunities".
	OpportunityCollection string `koanf:"opportunity_collection"`

	// ProfileCollection is the collection holding profile vectors
	// (keyed profile_<id>). Default: "profiles".
	ProfileCollection string `koanf:"profile_collection"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Provider:      "memory",
			MaxTTL:        Duration(24 * time.Hour),
			SweepInterval: Duration(5 * time.Minute),
			Redis: RedisConfig{
				DialTimeout: Duration(3 * time.Second),
			},
		},
		VectorStore: VectorStoreConfig{
			Provider:  "chromem",
			Dimension: 1536,
			Chromem: ChromemConfig{
				Path: "~/.local/share/matchd/vectorstore",
			},
			Qdrant: QdrantConfig{
				Port: 6334,
			},
		},
		Embeddings: EmbeddingsConfig{
			Model:             "text-embedding-3-small",
			Dimension:         1536,
			RequestsPerSecond: 10,
		},
		ResponseCache: ResponseCacheConfig{
			ChatTTL:      Duration(5 * time.Minute),
			SearchTTL:    Duration(10 * time.Minute),
			EmbeddingTTL: Duration(30 * time.Minute),
		},
		Matching: MatchingConfig{
			MinMatchScore:         70,
			CheckInterval:         Duration(5 * time.Minute),
			MaxAlertsPerProfile:   10,
			MaxCandidates:         500,
			OpportunityCollection: "opportunities",
			ProfileCollection:     "profiles",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}

	switch c.Cache.Provider {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("cache: unknown provider %q (supported: memory, redis)", c.Cache.Provider)
	}
	if c.Cache.MaxTTL.Duration() < time.Second {
		return fmt.Errorf("cache: max_ttl must be at least 1s")
	}

	switch c.VectorStore.Provider {
	case "", "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore: unknown provider %q (supported: chromem, qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vectorstore: dimension must be positive")
	}

	if c.Embeddings.Dimension != c.VectorStore.Dimension {
		return fmt.Errorf("embeddings: dimension %d does not match vectorstore dimension %d",
			c.Embeddings.Dimension, c.VectorStore.Dimension)
	}

	if c.Matching.MinMatchScore < 0 || c.Matching.MinMatchScore > 100 {
		return fmt.Errorf("matching: min_match_score must be in [0,100]")
	}
	if c.Matching.MaxAlertsPerProfile <= 0 {
		return fmt.Errorf("matching: max_alerts_per_profile must be positive")
	}
	if c.Matching.CheckInterval.Duration() <= 0 {
		return fmt.Errorf("matching: check_interval must be positive")
	}

	return nil
}
