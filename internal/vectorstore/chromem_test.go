package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemUpsertAndQuery(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "opportunities", 3))

	vectors := []Vector{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: map[string]any{"title": "alpha", "active": true}},
		{ID: "b", Values: []float32{0, 1, 0}, Metadata: map[string]any{"title": "beta", "active": false}},
	}
	require.NoError(t, store.Upsert(ctx, "opportunities", vectors))

	results, err := store.Query(ctx, "opportunities", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Exact match ranks first with similarity ~1.
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
	assert.Equal(t, "alpha", results[0].Metadata["title"])
	assert.Equal(t, true, results[0].Metadata["active"])
}

func TestChromemQueryMissingCollection(t *testing.T) {
	store := newTestChromemStore(t)

	results, err := store.Query(context.Background(), "nowhere", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemQueryCapsTopK(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "small", []Vector{
		{ID: "only", Values: []float32{1, 0, 0}},
	}))

	// topK above the document count must not error.
	results, err := store.Query(ctx, "small", []float32{1, 0, 0}, 100, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemUpsertReplacesExisting(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "col", []Vector{
		{ID: "x", Values: []float32{1, 0, 0}, Metadata: map[string]any{"title": "old"}},
	}))
	require.NoError(t, store.Upsert(ctx, "col", []Vector{
		{ID: "x", Values: []float32{1, 0, 0}, Metadata: map[string]any{"title": "new"}},
	}))

	results, err := store.Query(ctx, "col", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Metadata["title"])
}

func TestChromemDelete(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "col", []Vector{
		{ID: "a", Values: []float32{1, 0, 0}},
		{ID: "b", Values: []float32{0, 1, 0}},
	}))

	require.NoError(t, store.Delete(ctx, "col", []string{"a"}))

	results, err := store.Query(ctx, "col", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestChromemDeleteAll(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "col", []Vector{
		{ID: "a", Values: []float32{1, 0, 0}},
		{ID: "b", Values: []float32{0, 1, 0}},
	}))

	require.NoError(t, store.Delete(ctx, "col", nil))

	results, err := store.Query(ctx, "col", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemUpsertValidation(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Upsert(ctx, "col", nil), ErrEmptyVectors)
	assert.ErrorIs(t, store.Upsert(ctx, "Bad Name", []Vector{{ID: "a", Values: []float32{1}}}), ErrInvalidCollectionName)
	assert.Error(t, store.Upsert(ctx, "col", []Vector{{Values: []float32{1}}}))
}

func TestChromemCreateCollectionIdempotent(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "col", 3))
	// Second create short-circuits on the existence cache.
	require.NoError(t, store.CreateCollection(ctx, "col", 3))

	// Deleting evicts the cache entry, so recreation reaches the DB again.
	require.NoError(t, store.DeleteCollection(ctx, "col"))
	require.NoError(t, store.CreateCollection(ctx, "col", 3))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"col"}, names)
}

func TestChromemListAndDeleteCollections(t *testing.T) {
	store := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "one", 3))
	require.NoError(t, store.CreateCollection(ctx, "two", 3))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, names)

	require.NoError(t, store.DeleteCollection(ctx, "one"))
	names, err = store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"two"}, names)
}

func TestWithDimensionNormalizesAtBoundary(t *testing.T) {
	store := WithDimension(newTestChromemStore(t), 4)
	ctx := context.Background()

	// Mismatched input lengths are fitted to the deployment dimension.
	require.NoError(t, store.Upsert(ctx, "col", []Vector{
		{ID: "short", Values: []float32{1, 0}},
		{ID: "long", Values: []float32{0, 1, 0, 0, 9, 9}},
	}))

	results, err := store.Query(ctx, "col", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "short", results[0].ID)
	assert.Len(t, results[0].Values, 4)
}
