package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// pgvectorRow is the GORM model backing every collection PgvectorStore
// manages; collection name is just another column since Postgres has no
// native notion of Qdrant's separate named collections.
type pgvectorRow struct {
	ID         string `gorm:"primaryKey;type:varchar(64)"`
	Collection string `gorm:"primaryKey;type:varchar(64);index"`
	Vector     pgvector.Vector `gorm:"type:vector(1024)"`
	Metadata   string          `gorm:"type:jsonb"`
}

func (pgvectorRow) TableName() string { return "vector_rows" }

// PgvectorStore backs the QA Cache's dedicated vector collection (spec.md
// §3 invariant "separate vector collection"); new code synthesized from
// gorm.io/driver/postgres + pgvector-go's documented `pgvector.NewVector`
// column type, since no teacher file implements a pgvector adapter.
type PgvectorStore struct {
	db *gorm.DB
}

func NewPgvectorStore(db *gorm.DB) (*PgvectorStore, error) {
	if err := db.AutoMigrate(&pgvectorRow{}); err != nil {
		return nil, rerr.NewBackendUnavailableError("pgvector", err)
	}
	return &PgvectorStore{db: db}, nil
}

func (s *PgvectorStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	// Collections are just a column value here; nothing to provision beyond
	// the shared table migrated in NewPgvectorStore.
	return nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, collection string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return rerr.NewBackendProtocolError("pgvector", err)
		}
		row := pgvectorRow{
			ID:         r.ID,
			Collection: collection,
			Vector:     pgvector.NewVector(r.Vector),
			Metadata:   string(md),
		}
		err = s.db.WithContext(ctx).Save(&row).Error
		if err != nil {
			return rerr.NewBackendUnavailableError("pgvector", err)
		}
	}
	return nil
}

// Search performs a cosine-distance nearest-neighbour query
// (`<=>` pgvector operator) restricted to collection, then applies the
// scalar Filter in-process (pgvector collections here are small enough —
// the QA cache — that a JSONB-predicate push-down is unnecessary).
func (s *PgvectorStore) Search(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]Hit, error) {
	var rows []pgvectorRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order(gorm.Expr("vector <=> ?", pgvector.NewVector(vector))).
		Limit(k * 4). // over-fetch since the Filter is applied after the query
		Find(&rows).Error
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("pgvector", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		var md map[string]any
		if err := json.Unmarshal([]byte(r.Metadata), &md); err != nil {
			return nil, rerr.NewBackendProtocolError("pgvector", err)
		}
		if !filter.Matches(md) {
			continue
		}
		vec := r.Vector.Slice()
		similarity := cosineSimilarity(vector, vec)
		hits = append(hits, Hit{Row: Row{ID: r.ID, Vector: vec, Metadata: md}, Similarity: similarity})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

func (s *PgvectorStore) DeleteWhere(ctx context.Context, collection string, filter Filter) error {
	// Exact single-key deletes (the QA cache's common case) are pushed down;
	// anything broader is resolved in-process.
	if len(filter.Must) == 1 && !filter.Must[0].Absent && filter.Must[0].Key == "id" {
		return s.db.WithContext(ctx).
			Where("collection = ? AND id = ?", collection, fmt.Sprint(filter.Must[0].Eq)).
			Delete(&pgvectorRow{}).Error
	}

	var rows []pgvectorRow
	if err := s.db.WithContext(ctx).Where("collection = ?", collection).Find(&rows).Error; err != nil {
		return rerr.NewBackendUnavailableError("pgvector", err)
	}
	for _, r := range rows {
		var md map[string]any
		_ = json.Unmarshal([]byte(r.Metadata), &md)
		if filter.Matches(md) {
			if err := s.db.WithContext(ctx).Delete(&pgvectorRow{}, "collection = ? AND id = ?", collection, r.ID).Error; err != nil {
				return rerr.NewBackendUnavailableError("pgvector", err)
			}
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
