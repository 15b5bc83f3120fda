package vectorstore

import "context"

// NormalizeValues fits values to dimension: shorter vectors are zero-padded,
// longer ones truncated. The input slice is never mutated.
func NormalizeValues(values []float32, dimension int) []float32 {
	if len(values) == dimension {
		return values
	}
	normalized := make([]float32, dimension)
	copy(normalized, values)
	return normalized
}

// WithDimension wraps a Store so every vector crossing the port boundary is
// normalized to the deployment dimension. Backends never see mismatched
// lengths; normalization is a port concern, not a backend one.
func WithDimension(store Store, dimension int) Store {
	return &normalizingStore{Store: store, dimension: dimension}
}

type normalizingStore struct {
	Store
	dimension int
}

func (n *normalizingStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	// Collections always use the deployment dimension regardless of what
	// the caller asked for.
	return n.Store.CreateCollection(ctx, name, n.dimension)
}

func (n *normalizingStore) Upsert(ctx context.Context, collection string, vectors []Vector) error {
	normalized := make([]Vector, len(vectors))
	for i, v := range vectors {
		v.Values = NormalizeValues(v.Values, n.dimension)
		normalized[i] = v
	}
	return n.Store.Upsert(ctx, collection, normalized)
}

func (n *normalizingStore) Query(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]any) ([]QueryResult, error) {
	return n.Store.Query(ctx, collection, NormalizeValues(queryVector, n.dimension), topK, filter)
}
