package vectorstore

import (
	"context"
	"sync"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the primary document-corpus adapter, grounded on
// application/repository/retriever/qdrant/structs.go's
// qdrantRepository{client, collectionBaseName, initializedCollections}.
type QdrantStore struct {
	client      *qdrant.Client
	initialized sync.Map // collection name -> struct{}
}

// NewQdrantStore dials the Qdrant gRPC endpoint at addr (host:port).
func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("qdrant", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	if _, ok := s.initialized.Load(collection); ok {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return rerr.NewBackendUnavailableError("qdrant", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return rerr.NewBackendUnavailableError("qdrant", err)
		}
		logger.Infof(ctx, "qdrant collection %s created dim=%d", collection, dimension)
	}
	s.initialized.Store(collection, struct{}{})
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(rows))
	for _, r := range rows {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(r.Metadata),
		})
	}
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return rerr.NewBackendUnavailableError("qdrant", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]Hit, error) {
	limit := uint64(k)
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toQdrantFilter(filter),
	}
	result, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("qdrant", err)
	}

	hits := make([]Hit, 0, len(result))
	for _, pt := range result {
		md := make(map[string]any, len(pt.Payload))
		for k, v := range pt.Payload {
			md[k] = qdrant.NewGoValue(v)
		}
		hits = append(hits, Hit{
			Row:        Row{ID: pointIDString(pt.Id), Metadata: md},
			Similarity: float64(pt.Score),
		})
	}
	return hits, nil
}

func (s *QdrantStore) DeleteWhere(ctx context.Context, collection string, filter Filter) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
		Wait:           &wait,
	})
	if err != nil {
		return rerr.NewBackendUnavailableError("qdrant", err)
	}
	return nil
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	if len(f.Must) == 0 && len(f.Or) == 0 {
		return nil
	}
	out := &qdrant.Filter{}
	for _, c := range f.Must {
		if c.Absent {
			out.MustNot = append(out.MustNot, qdrant.NewIsEmpty(c.Key))
			continue
		}
		out.Must = append(out.Must, qdrant.NewMatchInt(c.Key, toInt64(c.Eq)))
	}
	for _, alt := range f.Or {
		out.Should = append(out.Should, qdrant.NewFilterAsCondition(toQdrantFilter(alt)))
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return ""
}
