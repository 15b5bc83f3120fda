// Package backend resolves configured cache and vector providers into
// concrete backends.
//
// Resolution is deterministic and explicit: callers receive a Resolution
// describing whether the configured provider was used or a fallback was
// taken, and why. The cache side always has a working fallback (the
// in-process store); the vector side falls back to the alternate backend
// only when that backend is fully configured, and otherwise fails with a
// configuration error at first use. Matching correctness depends on the
// vector store, so it is never silently degraded the way the cache is.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bidscoutlabs/matchd/internal/cache"
	"github.com/bidscoutlabs/matchd/internal/config"
	"github.com/bidscoutlabs/matchd/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrVectorNotConfigured is returned when no usable vector backend is
// configured. Raised lazily at first vector use so non-matching code paths
// keep working.
var ErrVectorNotConfigured = errors.New("no vector backend configured")

// Resolution records which provider a selection resolved to.
type Resolution struct {
	// Provider is the backend actually in use.
	Provider string

	// FellBack is true when Provider differs from the configured choice.
	FellBack bool

	// From is the configured provider that was rejected (set when
	// FellBack).
	From string

	// Reason explains the fallback (set when FellBack).
	Reason string
}

func resolved(provider string) Resolution {
	return Resolution{Provider: provider}
}

func fellBack(from, to, reason string) Resolution {
	return Resolution{Provider: to, FellBack: true, From: from, Reason: reason}
}

// Selector lazily resolves and memoizes backend instances for the process
// lifetime. It replaces process-global singletons: construct one at startup,
// inject it, and call Reset only from test harnesses.
type Selector struct {
	cfg    *config.Config
	logger *zap.Logger

	mu sync.Mutex

	cacheInst       cache.Cache
	cacheResolution Resolution
	cacheDone       bool

	vectorInst       vectorstore.Store
	vectorResolution Resolution
	vectorErr        error
	vectorDone       bool
}

// NewSelector creates a Selector. Nothing is resolved until first use.
func NewSelector(cfg *config.Config, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{cfg: cfg, logger: logger}
}

// Cache returns the resolved cache backend, instantiating it on first call.
// Cache selection cannot fail: an unreachable or unconfigured Redis falls
// back to the in-process store.
func (s *Selector) Cache(ctx context.Context) (cache.Cache, Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cacheDone {
		s.cacheInst, s.cacheResolution = s.resolveCache(ctx)
		s.cacheDone = true
		s.logResolution("cache", s.cacheResolution)
	}
	return s.cacheInst, s.cacheResolution
}

func (s *Selector) resolveCache(ctx context.Context) (cache.Cache, Resolution) {
	cfg := s.cfg.Cache
	memory := func() *cache.MemoryCache {
		return cache.NewMemoryCache(cache.MemoryConfig{
			MaxTTL:        cfg.MaxTTL.Duration(),
			SweepInterval: cfg.SweepInterval.Duration(),
		}, s.logger)
	}

	switch cfg.Provider {
	case "", "memory":
		return memory(), resolved("memory")

	case "redis":
		if cfg.Redis.Addr == "" {
			return memory(), fellBack("redis", "memory", "redis address not configured")
		}
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password.Value(),
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout.Duration(),
			MaxTTL:      cfg.MaxTTL.Duration(),
		}, s.logger)
		if err != nil {
			return memory(), fellBack("redis", "memory", fmt.Sprintf("redis unreachable: %v", err))
		}
		return redisCache, resolved("redis")

	default:
		// Config validation rejects unknown providers earlier; treat a
		// stray value like an unconfigured one.
		return memory(), fellBack(cfg.Provider, "memory", "unknown cache provider")
	}
}

// Vector returns the resolved vector backend, instantiating it on first
// call. The returned store normalizes all vectors to the configured
// deployment dimension.
//
// Fallback order: the configured provider first; then the alternate backend
// if fully configured; otherwise ErrVectorNotConfigured. The error is
// memoized like a successful resolution, so a misconfigured deployment
// fails the same way on every call.
func (s *Selector) Vector(ctx context.Context) (vectorstore.Store, Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.vectorDone {
		s.vectorInst, s.vectorResolution, s.vectorErr = s.resolveVector(ctx)
		s.vectorDone = true
		if s.vectorErr == nil {
			s.logResolution("vectorstore", s.vectorResolution)
		} else {
			s.logger.Error("vector backend resolution failed", zap.Error(s.vectorErr))
		}
	}
	return s.vectorInst, s.vectorResolution, s.vectorErr
}

func (s *Selector) resolveVector(ctx context.Context) (vectorstore.Store, Resolution, error) {
	cfg := s.cfg.VectorStore

	newChromem := func() (vectorstore.Store, error) {
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, s.logger)
	}
	newQdrant := func() (vectorstore.Store, error) {
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey.Value(),
			UseTLS: cfg.Qdrant.UseTLS,
		}, s.logger)
	}

	wrap := func(store vectorstore.Store, res Resolution) (vectorstore.Store, Resolution, error) {
		return vectorstore.WithDimension(store, cfg.Dimension), res, nil
	}

	switch cfg.Provider {
	case "qdrant":
		if cfg.Qdrant.Configured() {
			store, err := newQdrant()
			if err == nil {
				return wrap(store, resolved("qdrant"))
			}
			// Alternate backend: chromem needs no credentials, only a
			// writable path.
			fallbackStore, ferr := newChromem()
			if ferr != nil {
				return nil, Resolution{}, fmt.Errorf("qdrant unusable (%v) and chromem fallback failed: %w", err, ferr)
			}
			return wrap(fallbackStore, fellBack("qdrant", "chromem", fmt.Sprintf("qdrant unreachable: %v", err)))
		}
		fallbackStore, ferr := newChromem()
		if ferr != nil {
			return nil, Resolution{}, fmt.Errorf("%w: qdrant host not set and chromem fallback failed: %v", ErrVectorNotConfigured, ferr)
		}
		return wrap(fallbackStore, fellBack("qdrant", "chromem", "qdrant host not configured"))

	case "", "chromem":
		store, err := newChromem()
		if err == nil {
			return wrap(store, resolved("chromem"))
		}
		if cfg.Qdrant.Configured() {
			fallbackStore, ferr := newQdrant()
			if ferr != nil {
				return nil, Resolution{}, fmt.Errorf("chromem unusable (%v) and qdrant fallback failed: %w", err, ferr)
			}
			return wrap(fallbackStore, fellBack("chromem", "qdrant", fmt.Sprintf("chromem unusable: %v", err)))
		}
		return nil, Resolution{}, fmt.Errorf("%w: chromem unusable (%v) and no qdrant host configured", ErrVectorNotConfigured, err)

	default:
		return nil, Resolution{}, fmt.Errorf("%w: unknown provider %q", ErrVectorNotConfigured, cfg.Provider)
	}
}

func (s *Selector) logResolution(kind string, res Resolution) {
	if res.FellBack {
		s.logger.Warn("backend fallback",
			zap.String("kind", kind),
			zap.String("configured", res.From),
			zap.String("using", res.Provider),
			zap.String("reason", res.Reason),
		)
		return
	}
	s.logger.Info("backend resolved",
		zap.String("kind", kind),
		zap.String("provider", res.Provider),
	)
}

// Reset closes and forgets resolved backends. Test harnesses only.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheInst != nil {
		_ = s.cacheInst.Close()
	}
	if s.vectorInst != nil {
		_ = s.vectorInst.Close()
	}
	s.cacheInst, s.cacheResolution, s.cacheDone = nil, Resolution{}, false
	s.vectorInst, s.vectorResolution, s.vectorErr, s.vectorDone = nil, Resolution{}, nil, false
}

// Close releases resolved backends at shutdown.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.cacheInst != nil {
		if err := s.cacheInst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.vectorInst != nil {
		if err := s.vectorInst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing backends: %v", errs)
	}
	return nil
}
