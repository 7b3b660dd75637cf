package retriever

import (
	"context"
	"testing"

	"github.com/weknora-chat/ragstream/internal/modelclient/embedding"
	"github.com/weknora-chat/ragstream/internal/modelclient/rerank"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, mode embedding.Mode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int   { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeStore struct {
	hits []vectorstore.Hit
}

func (f *fakeStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	return nil
}
func (f *fakeStore) Upsert(ctx context.Context, collection string, rows []vectorstore.Row) error {
	return nil
}
func (f *fakeStore) Search(ctx context.Context, collection string, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	out := make([]vectorstore.Hit, 0, len(f.hits))
	for _, h := range f.hits {
		if filter.Matches(h.Metadata) {
			out = append(out, h)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
func (f *fakeStore) DeleteWhere(ctx context.Context, collection string, filter vectorstore.Filter) error {
	return nil
}

type fakeReranker struct {
	scores []float64
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, documents []string) ([]rerank.RankResult, error) {
	out := make([]rerank.RankResult, len(documents))
	for i := range documents {
		s := rerank.SentinelFloor
		if i < len(f.scores) {
			s = f.scores[i]
		}
		out[i] = rerank.RankResult{Index: i, RelevanceScore: s}
	}
	return out, nil
}
func (f *fakeReranker) ModelName() string { return "fake" }

func TestRetrieve_PermissionFilterExcludesAdminOnlyForUser(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{Row: vectorstore.Row{ID: "1", Metadata: map[string]any{"content": "public doc", "permission": 0, "chunk_id": "c1"}}, Similarity: 0.9},
		{Row: vectorstore.Row{ID: "2", Metadata: map[string]any{"content": "admin doc", "permission": 1, "chunk_id": "c2"}}, Similarity: 0.95},
	}}
	r := New(&fakeEmbedder{dim: 4}, store, &fakeReranker{scores: []float64{0.8}}, nil, nil)

	result, err := r.Retrieve(context.Background(), "query", types.PermissionLevelUser, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "1", result.Passages[0].VectorID)
}

func TestRetrieve_AdminSeesEverything(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{Row: vectorstore.Row{ID: "1", Metadata: map[string]any{"content": "public doc", "permission": 0, "chunk_id": "c1"}}, Similarity: 0.9},
		{Row: vectorstore.Row{ID: "2", Metadata: map[string]any{"content": "admin doc", "permission": 1, "chunk_id": "c2"}}, Similarity: 0.95},
	}}
	r := New(&fakeEmbedder{dim: 4}, store, &fakeReranker{scores: []float64{0.7, 0.9}}, nil, nil)

	result, err := r.Retrieve(context.Background(), "query", types.PermissionLevelAdmin, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.Passages, 2)
}

func TestRetrieve_RerankFloorDropsLowScoringPassages(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{Row: vectorstore.Row{ID: "1", Metadata: map[string]any{"content": "relevant", "chunk_id": "c1"}}, Similarity: 0.9},
		{Row: vectorstore.Row{ID: "2", Metadata: map[string]any{"content": "irrelevant", "chunk_id": "c2"}}, Similarity: 0.8},
	}}
	r := New(&fakeEmbedder{dim: 4}, store, &fakeReranker{scores: []float64{0.5, rerank.SentinelFloor}}, nil, nil)

	opts := DefaultOptions()
	result, err := r.Retrieve(context.Background(), "query", types.PermissionLevelAdmin, opts)
	require.NoError(t, err)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "1", result.Passages[0].VectorID)
}

func TestRetrieve_FormatsCitationHeader(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{Row: vectorstore.Row{ID: "1", Metadata: map[string]any{"content": "hello world", "chunk_id": "c1", "filename": "report.pdf"}}, Similarity: 0.9},
	}}
	r := New(&fakeEmbedder{dim: 4}, store, nil, nil, nil)

	opts := DefaultOptions()
	opts.RerankEnabled = false
	result, err := r.Retrieve(context.Background(), "query", types.PermissionLevelAdmin, opts)
	require.NoError(t, err)
	assert.Equal(t, "[doc: report.pdf#c1]\nhello world", result.FormattedContext)
}

func TestDeduper_DropsNearDuplicateWithinEpsilon(t *testing.T) {
	d := NewDeduper()
	base := "the quick brown fox jumps over the lazy dog and then ran away quickly into the forest"
	passages := []types.Passage{
		{VectorID: "1", Text: base, Similarity: 0.91},
		{VectorID: "2", Text: base + ".", Similarity: 0.905},
		{VectorID: "3", Text: "completely unrelated text about oceans", Similarity: 0.5},
	}
	kept := d.Dedup(passages, 0.02)
	require.Len(t, kept, 2)
	assert.Equal(t, "1", kept[0].VectorID)
	assert.Equal(t, "3", kept[1].VectorID)
}

func TestDeduper_KeepsSimilarTextWhenScoresDivergeBeyondEpsilon(t *testing.T) {
	d := NewDeduper()
	base := "the quick brown fox jumps over the lazy dog and then ran away quickly into the forest"
	passages := []types.Passage{
		{VectorID: "1", Text: base, Similarity: 0.95},
		{VectorID: "2", Text: base, Similarity: 0.50},
	}
	kept := d.Dedup(passages, 0.02)
	assert.Len(t, kept, 2)
}

func TestDeduper_KeepsDistinctTextBelowLengthRatioThreshold(t *testing.T) {
	d := NewDeduper()
	passages := []types.Passage{
		{VectorID: "1", Text: "the quick brown fox jumps over the lazy dog", Similarity: 0.91},
		{VectorID: "2", Text: "the quick brown fox jumps over the lazy dog today", Similarity: 0.905},
	}
	kept := d.Dedup(passages, 0.02)
	assert.Len(t, kept, 2)
}

func TestDeduper_CJKTokenizationOverlap(t *testing.T) {
	d := NewDeduper()
	base := "北京是中华人民共和国的首都也是全国的政治文化中心拥有悠久的历史和丰富的文化遗产每年吸引大量游客前来观光"
	passages := []types.Passage{
		{VectorID: "1", Text: base, Similarity: 0.9},
		{VectorID: "2", Text: base + "市", Similarity: 0.89},
	}
	kept := d.Dedup(passages, 0.02)
	assert.Len(t, kept, 1)
}
