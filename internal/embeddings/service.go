// Package embeddings converts text into fixed-length vectors via an
// OpenAI-compatible provider, with memoization and a deterministic offline
// fallback.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyInput indicates an empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// memoCeiling is the memo size at which the oldest half is evicted.
const memoCeiling = 1000

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is an OpenAI-compatible endpoint. Empty uses the OpenAI
	// default. Works with any compatible provider (openai, ollama,
	// siliconflow, ...).
	BaseURL string

	// APIKey authenticates against the provider. An empty key is allowed;
	// requests will fail and the pseudo-vector fallback takes over.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimension is the output vector length.
	Dimension int

	// RequestsPerSecond rate-limits provider calls. Default: 10.
	RequestsPerSecond float64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings with per-text memoization.
//
// Results are memoized by exact text content. When the memo exceeds
// memoCeiling entries, the oldest half is dropped. On any provider failure
// (network error, missing credential, non-2xx, malformed response) a
// deterministic pseudo-vector derived from the text hash is returned
// instead, so downstream scoring keeps working; ranking quality degrades
// rather than the pipeline failing closed.
type Service struct {
	client  *openai.Client
	config  Config
	logger  *zap.Logger
	limiter *rate.Limiter
	metrics *Metrics

	mu    sync.Mutex
	memo  map[string][]float32
	order []string
}

// NewService creates an embedding Service.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		metrics: NewMetrics(logger),
		memo:    make(map[string][]float32),
	}, nil
}

// Dimension returns the output vector length.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// GetEmbedding returns the embedding for text, from the memo when possible.
// It never returns an error for provider failures; only an empty input is
// rejected.
func (s *Service) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	if cached, ok := s.memoGet(text); ok {
		s.metrics.RecordLookup(ctx, "memo")
		return cached, nil
	}

	vector, source := s.fetch(ctx, text)
	s.memoPut(text, vector)
	s.metrics.RecordLookup(ctx, source)
	return vector, nil
}

// fetch calls the provider, falling back to a pseudo-vector on any failure.
func (s *Service) fetch(ctx context.Context, text string) (vector []float32, source string) {
	start := time.Now()

	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("embedding rate limiter interrupted, using pseudo-vector", zap.Error(err))
		return PseudoVector(text, s.config.Dimension), "pseudo"
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(s.config.Model),
		Dimensions: s.config.Dimension,
	})
	if err != nil {
		s.logger.Warn("embedding provider failed, using pseudo-vector",
			zap.String("model", s.config.Model),
			zap.Error(err),
		)
		s.metrics.RecordFallback(ctx, s.config.Model)
		return PseudoVector(text, s.config.Dimension), "pseudo"
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		s.logger.Warn("embedding provider returned empty response, using pseudo-vector",
			zap.String("model", s.config.Model),
		)
		s.metrics.RecordFallback(ctx, s.config.Model)
		return PseudoVector(text, s.config.Dimension), "pseudo"
	}

	s.metrics.RecordGeneration(ctx, s.config.Model, time.Since(start))
	return resp.Data[0].Embedding, "provider"
}

func (s *Service) memoGet(text string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vector, ok := s.memo[text]
	return vector, ok
}

// memoPut inserts a memo entry and enforces the ceiling: past memoCeiling
// entries, the oldest half is evicted so the memo cannot grow unbounded.
func (s *Service) memoPut(text string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memo[text]; !exists {
		s.order = append(s.order, text)
	}
	s.memo[text] = vector

	if len(s.memo) <= memoCeiling {
		return
	}

	keep := len(s.order) / 2
	for _, old := range s.order[:len(s.order)-keep] {
		delete(s.memo, old)
	}
	s.order = append([]string(nil), s.order[len(s.order)-keep:]...)

	s.logger.Debug("embedding memo evicted oldest half",
		zap.Int("remaining", len(s.memo)),
	)
}

// MemoLen reports the current memo size.
func (s *Service) MemoLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memo)
}
