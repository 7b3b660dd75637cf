// Package vectorstore implements C2, the Vector Store Adapter (spec.md
// §4.2): create/load a collection, batched upsert, filtered vector search,
// delete by predicate. Two backends are provided: QdrantStore (the primary
// document corpus, grounded on
// application/repository/retriever/qdrant/structs.go) and PgvectorStore
// (the QA Cache's dedicated collection, spec.md §3's "separate vector
// collection" invariant).
package vectorstore

import "context"

// Row is one vector plus its scalar metadata, the unit of Upsert.
type Row struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Hit is one search result: the stored Row plus its similarity score.
type Hit struct {
	Row
	Similarity float64
}

// Condition is one scalar-field predicate. Exactly one of Eq/Absent is set.
type Condition struct {
	Key    string
	Eq     any
	Absent bool // matches rows where Key is missing entirely (legacy rows)
}

// Filter is a conjunction ("must" in Qdrant parlance) of Conditions, or a
// disjunction of two Filters (used by C3 step 2's "permission == 0 OR
// permission absent").
type Filter struct {
	Must []Condition
	// Or, if non-empty, is evaluated as Must OR each entry in Or; with Must
	// empty, only the Or entries can match.
	Or []Filter
}

// Matches reports whether md satisfies the filter, used by PgvectorStore's
// in-process filtering and by tests.
func (f Filter) Matches(md map[string]any) bool {
	ok := len(f.Must) > 0 || len(f.Or) == 0
	for _, c := range f.Must {
		v, present := md[c.Key]
		if c.Absent {
			if present {
				ok = false
				break
			}
			continue
		}
		if !present || v != c.Eq {
			ok = false
			break
		}
	}
	if ok {
		return true
	}
	for _, alt := range f.Or {
		if alt.Matches(md) {
			return true
		}
	}
	return false
}

// PermissionFilter builds the "non-admin restricted to permission==0 or
// absent" filter from spec.md §4.3 step 2.
func PermissionFilter(adminOnly bool) Filter {
	if adminOnly {
		return Filter{}
	}
	return Filter{
		Or: []Filter{
			{Must: []Condition{{Key: "permission", Eq: 0}}},
			{Must: []Condition{{Key: "permission", Absent: true}}},
		},
	}
}

// Store is the uniform vector-store adapter interface.
type Store interface {
	// EnsureCollection creates/loads a collection with the given vector
	// dimension and cosine metric if it does not already exist, and is safe
	// to call repeatedly (spec.md §4.2 "load ... hide this by lazily
	// ensuring load on first query").
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	// Upsert is idempotent on Row.ID.
	Upsert(ctx context.Context, collection string, rows []Row) error
	// Search returns up to k hits ordered by decreasing cosine similarity;
	// the order of hits with equal similarity is not defined.
	Search(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]Hit, error)
	// DeleteWhere removes every row matching filter.
	DeleteWhere(ctx context.Context, collection string, filter Filter) error
}
