package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/matchd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/matchd/vectorstore"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with gob-file persistence. It requires no external
// service, which makes it the fallback backend when Qdrant is unreachable
// or unconfigured.
//
// All vectors are precomputed upstream (by the embedding gateway), so the
// collection embedding function is a stub that must never run.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// collections tracks created collections to keep CreateCollection
	// idempotent without hitting the DB.
	collections sync.Map
}

// NewChromemStore creates a ChromemStore with persistent storage.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
	)

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// precomputedEmbeddingFunc is installed on every collection. Vectors arrive
// with embeddings attached, so chromem must never generate one itself.
func precomputedEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectors are precomputed; no embedding function available")
}

// CreateCollection creates (or opens) a collection. chromem infers the
// vector dimension from the first stored vector, so dimension is only
// recorded for parity with other backends.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if _, ok := s.collections.Load(name); ok {
		return nil
	}
	if _, err := s.db.GetOrCreateCollection(name, nil, precomputedEmbeddingFunc); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.collections.Store(name, true)
	return nil
}

// Upsert stores vectors, replacing any existing IDs.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, vectors []Vector) error {
	if len(vectors) == 0 {
		return ErrEmptyVectors
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, precomputedEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	s.collections.Store(collection, true)

	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector at index %d has no ID", i)
		}
		docs[i] = chromem.Document{
			ID:        v.ID,
			Metadata:  convertMetadataToString(v.Metadata),
			Embedding: v.Values,
		}
	}

	// Concurrency of 1: embeddings already exist, so there is no work to
	// parallelize.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("upserting vectors: %w", err)
	}

	s.logger.Debug("upserted vectors to chromem",
		zap.String("collection", collection),
		zap.Int("count", len(vectors)),
	)
	return nil
}

// Query returns up to topK vectors ordered by descending similarity.
// chromem reports cosine similarity natively (1 = identical), so scores
// pass through unchanged. A missing or empty collection yields an empty
// result, not an error.
func (s *ChromemStore) Query(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]any) ([]QueryResult, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	col := s.db.GetCollection(collection, precomputedEmbeddingFunc)
	if col == nil {
		return []QueryResult{}, nil
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return []QueryResult{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, queryVector, topK, convertMetadataToString(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	out := make([]QueryResult, len(results))
	for i, r := range results {
		out[i] = QueryResult{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: convertMetadataFromString(r.Metadata),
			Values:   r.Embedding,
		}
	}
	return out, nil
}

// Delete removes the given vectors, or every vector when ids is nil.
func (s *ChromemStore) Delete(ctx context.Context, collection string, ids []string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	col := s.db.GetCollection(collection, precomputedEmbeddingFunc)
	if col == nil {
		return ErrCollectionNotFound
	}

	if len(ids) == 0 {
		// Delete-all: drop and recreate the collection.
		if err := s.db.DeleteCollection(collection); err != nil {
			return fmt.Errorf("clearing collection %s: %w", collection, err)
		}
		if _, err := s.db.GetOrCreateCollection(collection, nil, precomputedEmbeddingFunc); err != nil {
			return fmt.Errorf("recreating collection %s: %w", collection, err)
		}
		return nil
	}

	var failures []string
	for _, id := range ids {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			s.logger.Error("failed to delete vector",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err),
			)
			failures = append(failures, id)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to delete %d of %d vectors: %v", len(failures), len(ids), failures)
	}
	return nil
}

// ListCollections returns all collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	return names, nil
}

// DeleteCollection removes a collection and all its vectors.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.collections.Delete(name)
	return nil
}

// IsConnected always reports true for the embedded backend.
func (s *ChromemStore) IsConnected(ctx context.Context) bool {
	return true
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}
