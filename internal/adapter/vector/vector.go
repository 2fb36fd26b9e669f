// Package vector wraps Qdrant for the pipeline's vector index: one point
// per document, upserted idempotently by job id.
package vector

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store is the sole owner of all Qdrant operations for the document
// pipeline.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection if absent, and recreates it if
// it exists with a different vector size than dims — the embedding model
// in use determines dims, and a stale collection from a prior model
// would silently reject or corrupt upserts otherwise.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("vector: list collections: %w", err))
	}

	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			exists = true
			break
		}
	}

	if exists {
		info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
		if err != nil {
			return errkind.New(errkind.Transient, fmt.Errorf("vector: get collection info: %w", err))
		}
		params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params != nil && params.GetSize() == uint64(dims) {
			return nil
		}
		if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
			return errkind.New(errkind.Transient, fmt.Errorf("vector: delete stale collection: %w", err))
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("vector: create collection %s: %w", s.collection, err))
	}
	return nil
}

// Upsert writes one document's embedding and payload, keyed by a
// deterministic id so redelivery overwrites rather than duplicates.
func (s *Store) Upsert(ctx context.Context, id string, embedding []float32, payload map[string]any) error {
	pbPayload := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		pbPayload[k] = toValue(val)
	}

	point := &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embedding}}},
		Payload: pbPayload,
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("vector: upsert %s: %w", id, err))
	}
	return nil
}

// DeleteByJobID removes the point for a job, used when a job is
// reprocessed with different content under the same id.
func (s *Store) DeleteByJobID(ctx context.Context, jobID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch("lexical_id", jobID)}},
			},
		},
	})
	if err != nil {
		return errkind.New(errkind.Transient, fmt.Errorf("vector: delete by job_id %s: %w", jobID, err))
	}
	return nil
}

// SearchResult is one hit from a similarity search.
type SearchResult struct {
	ID    string
	Score float32
	Meta  map[string]string
}

// Search performs k-NN similarity search with optional metadata filters.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filters) > 0 {
		must := make([]*pb.Condition, 0, len(filters))
		for k, v := range filters {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, errkind.New(errkind.Transient, fmt.Errorf("vector: search: %w", err))
	}

	out := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{ID: r.GetId().GetUuid(), Score: r.GetScore(), Meta: make(map[string]string)}
		for k, val := range r.GetPayload() {
			sr.Meta[k] = val.GetStringValue()
		}
		out[i] = sr
	}
	return out, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}
