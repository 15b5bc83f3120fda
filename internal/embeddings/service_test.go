package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves an OpenAI-compatible embeddings endpoint and counts
// calls.
func fakeProvider(t *testing.T, dimension int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		embedding := make([]float32, dimension)
		for i := range embedding {
			embedding[i] = float32(i) / float32(dimension)
		}
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": embedding},
			},
			"model": "text-embedding-3-small",
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(Config{
		BaseURL:           baseURL + "/v1",
		APIKey:            "test-key",
		Model:             "text-embedding-3-small",
		Dimension:         8,
		RequestsPerSecond: 1000,
	}, nil)
	require.NoError(t, err)
	return svc
}

func TestServiceConfigValidation(t *testing.T) {
	_, err := NewService(Config{Dimension: 8}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewService(Config{Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetEmbeddingEmptyInput(t *testing.T) {
	srv, _ := fakeProvider(t, 8)
	svc := newTestService(t, srv.URL)

	_, err := svc.GetEmbedding(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestGetEmbeddingMemoizes(t *testing.T) {
	srv, calls := fakeProvider(t, 8)
	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	first, err := svc.GetEmbedding(ctx, "software development")
	require.NoError(t, err)
	require.Len(t, first, 8)

	second, err := svc.GetEmbedding(ctx, "software development")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The identical text must hit the provider exactly once.
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, svc.MemoLen())
}

func TestGetEmbeddingFallsBackToPseudoVector(t *testing.T) {
	// Server that always fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	vector, err := svc.GetEmbedding(ctx, "some text")
	require.NoError(t, err)
	assert.Equal(t, PseudoVector("some text", 8), vector)
}

func TestMemoEvictsOldestHalf(t *testing.T) {
	srv, _ := fakeProvider(t, 8)
	svc := newTestService(t, srv.URL)
	ctx := context.Background()

	for i := 0; i <= memoCeiling; i++ {
		_, err := svc.GetEmbedding(ctx, fmt.Sprintf("text-%d", i))
		require.NoError(t, err)
	}

	// Crossing the ceiling drops the oldest half.
	assert.LessOrEqual(t, svc.MemoLen(), memoCeiling/2+1)

	// The newest entry survives eviction.
	_, ok := svc.memoGet(fmt.Sprintf("text-%d", memoCeiling))
	assert.True(t, ok)

	// The oldest entry is gone.
	_, ok = svc.memoGet("text-0")
	assert.False(t, ok)
}

func TestPseudoVectorDeterministic(t *testing.T) {
	a := PseudoVector("identical text", 16)
	b := PseudoVector("identical text", 16)
	assert.Equal(t, a, b)

	c := PseudoVector("different text", 16)
	assert.NotEqual(t, a, c)
}

func TestPseudoVectorRange(t *testing.T) {
	vector := PseudoVector("range check", 256)
	require.Len(t, vector, 256)
	for i, v := range vector {
		assert.GreaterOrEqual(t, v, float32(-1), "index %d", i)
		assert.Less(t, v, float32(1), "index %d", i)
	}
}
