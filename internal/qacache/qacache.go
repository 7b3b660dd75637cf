// Package qacache implements C9, the QA Cache (spec.md §4.9): an
// embedding-indexed cache of (question, answer, citations) keyed by a
// stable thought-chain id, with feedback-driven invalidation. It is built
// on the same vectorstore.Store contract C2 exposes to C3, using the
// dedicated collection spec.md §3 requires rather than the document
// corpus, grounded on vectorstore/pgvector_store.go.
package qacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/weknora-chat/ragstream/internal/common"
	"github.com/weknora-chat/ragstream/internal/modelclient/embedding"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/vectorstore"
)

const collection = "qa_cache"

// thoughtChainIDLen is the truncation length decided in SPEC_FULL.md §D:
// sha256(question+"\x1f"+answer) hex, truncated to 32 chars.
const thoughtChainIDLen = 32

// Config carries C9's tunables (spec.md §4.9).
type Config struct {
	HitThreshold      float64
	DislikeInvalidate int
}

// Cache is the QA Cache.
type Cache struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	cfg      Config
}

func New(store vectorstore.Store, embedder embedding.Embedder, cfg Config) *Cache {
	return &Cache{store: store, embedder: embedder, cfg: cfg}
}

// ThoughtChainID computes the canonical cache key for a (question, answer)
// pair (SPEC_FULL.md §D Open Question decision).
func ThoughtChainID(question, answer string) string {
	sum := sha256.Sum256([]byte(question + "\x1f" + answer))
	return hex.EncodeToString(sum[:])[:thoughtChainIDLen]
}

// Lookup embeds question and searches the cache for a near-duplicate prior
// answer at or above cfg.HitThreshold cosine similarity (spec.md §4.9
// "Lookup"). A miss returns (nil, nil), not an error.
func (c *Cache) Lookup(ctx context.Context, question string) (*types.QACacheEntry, error) {
	vectors, err := c.embedder.Embed(ctx, []string{question}, embedding.ModeQuery)
	if err != nil {
		common.PipelineError(ctx, common.StageCacheProbe, err, "embed cache probe query failed")
		return nil, err
	}

	hits, err := c.store.Search(ctx, collection, vectors[0], 1, vectorstore.Filter{})
	if err != nil {
		common.PipelineError(ctx, common.StageCacheProbe, err, "cache search failed")
		return nil, err
	}
	if len(hits) == 0 || hits[0].Similarity < c.cfg.HitThreshold {
		return nil, nil
	}

	entry, err := decodeEntry(hits[0].Row)
	if err != nil {
		common.PipelineWarn(ctx, common.StageCacheProbe, "dropping malformed cache row %s: %v", hits[0].ID, err)
		return nil, nil
	}
	return entry, nil
}

// Upsert embeds question and stores the (question, answer, citations)
// triple under its stable thought-chain id (spec.md §4.9 "Upsert").
func (c *Cache) Upsert(ctx context.Context, question, answer string, citations []types.DocumentRef) error {
	vectors, err := c.embedder.Embed(ctx, []string{question}, embedding.ModePassage)
	if err != nil {
		return err
	}
	entry := types.QACacheEntry{
		ThoughtChainID: ThoughtChainID(question, answer),
		Question:       question,
		Answer:         answer,
		Citations:      citations,
		CreatedAt:      time.Now(),
	}
	row, err := encodeEntry(entry, vectors[0])
	if err != nil {
		return err
	}
	return c.store.Upsert(ctx, collection, []vectorstore.Row{row})
}

// RecordFeedback increments the entry's positive/negative vote counters and
// synchronously deletes it once negative votes reach cfg.DislikeInvalidate
// (spec.md §4.9 "Feedback-driven invalidation").
func (c *Cache) RecordFeedback(ctx context.Context, thoughtChainID string, kind types.FeedbackKind) error {
	entry, found, err := c.getByID(ctx, thoughtChainID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	switch kind {
	case types.FeedbackPositive:
		entry.PositiveCount++
	case types.FeedbackNegative:
		entry.NegativeCount++
	}

	if kind == types.FeedbackNegative && entry.NegativeCount >= c.cfg.DislikeInvalidate {
		return c.Delete(ctx, thoughtChainID)
	}

	// Re-embed from the stored question, since vectorstore.Store has no
	// partial-update primitive; the vector is unchanged, only metadata is.
	vectors, err := c.embedder.Embed(ctx, []string{entry.Question}, embedding.ModePassage)
	if err != nil {
		return err
	}
	row, err := encodeEntry(*entry, vectors[0])
	if err != nil {
		return err
	}
	return c.store.Upsert(ctx, collection, []vectorstore.Row{row})
}

// Export returns every entry currently in the cache, for the offline
// analytics exporter (SPEC_FULL.md §C.8). vectorstore.Store has no
// list-all primitive, so this asks for up to maxRows hits with an
// always-true filter; the zero probe vector only affects similarity
// scores, which the exporter does not use.
func (c *Cache) Export(ctx context.Context, maxRows int) ([]types.QACacheEntry, error) {
	probe := make([]float32, c.embedder.Dimensions())
	hits, err := c.store.Search(ctx, collection, probe, maxRows, vectorstore.Filter{})
	if err != nil {
		return nil, err
	}
	entries := make([]types.QACacheEntry, 0, len(hits))
	for _, h := range hits {
		entry, decodeErr := decodeEntry(h.Row)
		if decodeErr != nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Delete removes a cache entry outright, used both by feedback invalidation
// and by administrative cache-busting.
func (c *Cache) Delete(ctx context.Context, thoughtChainID string) error {
	return c.store.DeleteWhere(ctx, collection, vectorstore.Filter{
		Must: []vectorstore.Condition{{Key: "thought_chain_id", Eq: thoughtChainID}},
	})
}

// getByID retrieves a single entry by its primary key. vectorstore.Store
// has no direct get-by-id primitive, so this narrows a Search to exactly
// one row via an exact-match filter; the probe vector's value only affects
// the (here discarded) similarity score, never which row is returned.
func (c *Cache) getByID(ctx context.Context, thoughtChainID string) (*types.QACacheEntry, bool, error) {
	probe := make([]float32, c.embedder.Dimensions())
	hits, err := c.store.Search(ctx, collection, probe, 1, vectorstore.Filter{
		Must: []vectorstore.Condition{{Key: "thought_chain_id", Eq: thoughtChainID}},
	})
	if err != nil {
		return nil, false, err
	}
	if len(hits) == 0 {
		return nil, false, nil
	}
	entry, err := decodeEntry(hits[0].Row)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// cacheMetadata is the JSON-serialised payload stored in Row.Metadata under
// a single "entry" key, keeping the scalar "thought_chain_id" field
// available for vectorstore.Filter predicates.
type cacheMetadata struct {
	Question      string             `json:"question"`
	Answer        string             `json:"answer"`
	Citations     []types.DocumentRef `json:"citations"`
	CreatedAt     time.Time          `json:"created_at"`
	PositiveCount int                `json:"positive_count"`
	NegativeCount int                `json:"negative_count"`
}

func encodeEntry(entry types.QACacheEntry, vector []float32) (vectorstore.Row, error) {
	payload := cacheMetadata{
		Question:      entry.Question,
		Answer:        entry.Answer,
		Citations:     entry.Citations,
		CreatedAt:     entry.CreatedAt,
		PositiveCount: entry.PositiveCount,
		NegativeCount: entry.NegativeCount,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return vectorstore.Row{}, err
	}
	return vectorstore.Row{
		ID:     entry.ThoughtChainID,
		Vector: vector,
		Metadata: map[string]any{
			"thought_chain_id": entry.ThoughtChainID,
			"entry":            string(buf),
		},
	}, nil
}

func decodeEntry(row vectorstore.Row) (*types.QACacheEntry, error) {
	raw, _ := row.Metadata["entry"].(string)
	var payload cacheMetadata
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return &types.QACacheEntry{
		ThoughtChainID: row.ID,
		Question:       payload.Question,
		Answer:         payload.Answer,
		Citations:      payload.Citations,
		CreatedAt:      payload.CreatedAt,
		PositiveCount:  payload.PositiveCount,
		NegativeCount:  payload.NegativeCount,
	}, nil
}
