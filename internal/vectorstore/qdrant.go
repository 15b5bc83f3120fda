package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// externalIDField is the payload field carrying the caller's vector ID.
// Qdrant point IDs must be UUIDs or unsigned integers, so external string
// IDs live in the payload and point IDs are derived deterministically from
// them (same external ID always maps to the same point, preserving upsert
// semantics).
const externalIDField = "id"

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the 6333 REST port.
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional for local
	// deployments.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int

	// HealthCheckTimeout bounds the construction-time reachability probe.
	// Default: 5s.
	HealthCheckTimeout time.Duration
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// Cosine similarity is configured on every collection, so Qdrant already
// returns normalized similarity scores (1 = identical direction); no
// distance conversion is needed.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantStore creates a QdrantStore and verifies connectivity once.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.HealthCheckTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS),
	)
	return store, nil
}

// CreateCollection creates a collection with cosine distance. Creating an
// existing collection is a no-op.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	if _, ok := s.collections.Load(name); ok {
		return nil
	}
	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		s.collections.Store(name, true)
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.collections.Store(name, true)
	return nil
}

func (s *QdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return true, nil
}

// pointID derives the deterministic UUID point ID for an external vector ID.
func pointID(externalID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(externalID)).String())
}

// Upsert stores vectors, replacing any existing external IDs.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, vectors []Vector) error {
	if len(vectors) == 0 {
		return ErrEmptyVectors
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("vector at index %d has no ID", i)
		}

		payload := make(map[string]*qdrant.Value, len(v.Metadata)+1)
		payload[externalIDField] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v.ID}}
		for k, val := range v.Metadata {
			if k == externalIDField {
				continue
			}
			payload[k] = qdrantValue(val)
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(v.ID),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: payload,
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d vectors to %s: %w", len(vectors), collection, err)
	}

	s.logger.Debug("upserted vectors to qdrant",
		zap.String("collection", collection),
		zap.Int("count", len(vectors)),
	)
	return nil
}

// qdrantValue converts a metadata value into a qdrant payload value.
func qdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

// Query returns up to topK vectors ordered by descending similarity.
// A missing collection yields an empty result, not an error.
func (s *QdrantStore) Query(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]any) ([]QueryResult, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	var qFilter *qdrant.Filter
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			keyword := fmt.Sprintf("%v", v)
			if str, ok := v.(string); ok {
				keyword = str
			}
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: k,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: keyword},
						},
					},
				},
			})
		}
		qFilter = &qdrant.Filter{Must: conditions}
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         qFilter,
	})
	if err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return []QueryResult{}, nil
		}
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results := make([]QueryResult, 0, len(points))
	for _, p := range points {
		metadata := make(map[string]any, len(p.Payload))
		externalID := ""
		for k, v := range p.Payload {
			value := payloadValue(v)
			if k == externalIDField {
				if str, ok := value.(string); ok {
					externalID = str
				}
				continue
			}
			metadata[k] = value
		}
		results = append(results, QueryResult{
			ID:       externalID,
			Score:    p.Score,
			Metadata: metadata,
		})
	}
	return results, nil
}

// payloadValue converts a qdrant payload value back into a Go value.
func payloadValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

// Delete removes the given external IDs, or every point when ids is nil.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	var selector *qdrant.PointsSelector
	if len(ids) == 0 {
		// An empty filter matches every point.
		selector = &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{},
			},
		}
	} else {
		selector = &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: externalIDField,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keywords{
											Keywords: &qdrant.RepeatedStrings{Strings: ids},
										},
									},
								},
							},
						},
					},
				},
			},
		}
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         selector,
	})
	if err != nil {
		return fmt.Errorf("deleting from collection %s: %w", collection, err)
	}
	return nil
}

// ListCollections returns all collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return names, nil
}

// DeleteCollection removes a collection and all its vectors.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.collections.Delete(name)
	return nil
}

// IsConnected reports whether the server answers a health check.
func (s *QdrantStore) IsConnected(ctx context.Context) bool {
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
