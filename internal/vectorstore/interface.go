// Package vectorstore defines the vector storage port and its backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyVectors indicates an empty or nil vector batch.
	ErrEmptyVectors = errors.New("empty or nil vectors")

	// ErrConnectionFailed indicates backend connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector backend")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Vector is a stored embedding with its identity and metadata.
type Vector struct {
	// ID is unique within a collection. Upserting an existing ID replaces
	// the stored vector.
	ID string

	// Values is the embedding. The port normalizes length to the
	// deployment dimension before the backend sees it.
	Values []float32

	// Metadata holds backend-agnostic payload fields. Values survive a
	// round trip as strings, bools, ints, or floats; richer types are
	// stringified.
	Metadata map[string]any
}

// QueryResult is one similarity match.
type QueryResult struct {
	ID string

	// Score is normalized similarity: 1.0 = identical direction,
	// 0 = orthogonal. Backends that natively return a distance convert
	// with score = 1 - distance before returning.
	Score float32

	Metadata map[string]any

	// Values is the stored embedding when the backend returns it cheaply;
	// nil otherwise.
	Values []float32
}

// Store is the interface implemented by all vector backends.
//
// Query never treats an empty result set as an error; callers interpret
// empty as "no matches". Delete with nil ids removes every vector in the
// collection.
type Store interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, vectors []Vector) error
	Query(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]any) ([]QueryResult, error)
	Delete(ctx context.Context, collection string, ids []string) error
	ListCollections(ctx context.Context) ([]string, error)
	DeleteCollection(ctx context.Context, name string) error
	IsConnected(ctx context.Context) bool
	Close() error
}
