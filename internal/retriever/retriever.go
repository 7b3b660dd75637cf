// Package retriever implements C3, the Retriever (spec.md §4.3): embed
// query → vector search → rerank → dedup → format passages. The keyword
// leg and graph-enrichment hook are additive pipeline stages
// (SPEC_FULL.md §C.3), grounded on handler/system.go's
// getKeywordIndexEngine/getGraphDatabaseEngine.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/weknora-chat/ragstream/internal/common"
	"github.com/weknora-chat/ragstream/internal/modelclient/embedding"
	"github.com/weknora-chat/ragstream/internal/modelclient/rerank"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/vectorstore"
)

// KeywordSearcher is the optional BM25 leg (Elasticsearch), additive per
// SPEC_FULL.md §C.3: when nil, Retriever behaves exactly as spec.md §4.3
// specifies with the vector leg alone.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, k int) ([]types.Passage, error)
}

// GraphEnricher is the optional entity/graph enrichment hook consulted
// before formatting (SPEC_FULL.md §B, neo4j-go-driver). When nil it is a
// no-op.
type GraphEnricher interface {
	Enrich(ctx context.Context, passages []types.Passage) []types.Passage
}

// Options are the per-call tunables named in spec.md §4.3.
type Options struct {
	CandidateK    int
	FinalK        int
	RerankEnabled bool
	ScoreFloor    float64
	DedupEpsilon  float64
}

// DefaultOptions returns spec.md §4.3's documented defaults.
func DefaultOptions() Options {
	return Options{CandidateK: 15, FinalK: 5, RerankEnabled: true, ScoreFloor: -100, DedupEpsilon: 0.02}
}

// Result is what Retrieve returns: the formatted context plus the
// underlying passage list for citation emission (spec.md §4.3).
type Result struct {
	FormattedContext string
	Passages         []types.Passage
}

const (
	documentCollection = "documents"
)

// Retriever drives the Retrieve algorithm.
type Retriever struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	reranker rerank.Reranker
	keyword  KeywordSearcher
	graph    GraphEnricher
	dedup    *Deduper
}

func New(embedder embedding.Embedder, store vectorstore.Store, reranker rerank.Reranker, keyword KeywordSearcher, graph GraphEnricher) *Retriever {
	return &Retriever{embedder: embedder, store: store, reranker: reranker, keyword: keyword, graph: graph, dedup: NewDeduper()}
}

// Retrieve implements spec.md §4.3 steps 1–6.
func (r *Retriever) Retrieve(ctx context.Context, query string, level types.PermissionLevel, opts Options) (*Result, error) {
	// Step 1: embed query.
	vectors, err := r.embedder.Embed(ctx, []string{query}, embedding.ModeQuery)
	if err != nil {
		common.PipelineError(ctx, common.StageRetrieve, err, "embed query failed")
		return nil, err
	}
	queryVector := vectors[0]

	// Step 2: build filter.
	filter := vectorstore.PermissionFilter(level == types.PermissionLevelAdmin)

	// Step 3: vector search.
	hits, err := r.store.Search(ctx, documentCollection, queryVector, opts.CandidateK, filter)
	if err != nil {
		common.PipelineError(ctx, common.StageRetrieve, err, "vector search failed")
		return nil, err
	}
	passages := hitsToPassages(hits)

	// Supplemented: hybrid keyword leg merged in by score (SPEC_FULL §C.3).
	if r.keyword != nil {
		kwPassages, kwErr := r.keyword.Search(ctx, query, opts.CandidateK)
		if kwErr != nil {
			common.PipelineWarn(ctx, common.StageRetrieve, "keyword search failed, continuing vector-only: %v", kwErr)
		} else {
			passages = mergeByVectorID(passages, kwPassages)
		}
	}

	// Step 4: rerank.
	if opts.RerankEnabled && r.reranker != nil {
		reranked, rerankErr := r.rerank(ctx, query, passages, opts.ScoreFloor)
		if rerankErr != nil {
			common.PipelineWarn(ctx, common.StageRetrieve, "rerank failed, falling back to cosine ordering: %v", rerankErr)
			sortBySimilarity(passages)
		} else {
			passages = reranked
		}
	} else {
		sortBySimilarity(passages)
	}

	// Step 5: dedup.
	passages = r.dedup.Dedup(passages, opts.DedupEpsilon)

	// Supplemented: graph enrichment hook, before formatting.
	if r.graph != nil {
		passages = r.graph.Enrich(ctx, passages)
	}

	// Step 6: truncate + format.
	if len(passages) > opts.FinalK {
		passages = passages[:opts.FinalK]
	}

	return &Result{FormattedContext: formatPassages(passages), Passages: passages}, nil
}

func (r *Retriever) rerank(ctx context.Context, query string, passages []types.Passage, floor float64) ([]types.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	results, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	scored := make([]types.Passage, 0, len(results))
	for _, res := range results {
		if res.RelevanceScore <= floor {
			continue
		}
		if res.Index < 0 || res.Index >= len(passages) {
			continue
		}
		p := passages[res.Index]
		p.RerankScore = res.RelevanceScore
		scored = append(scored, p)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RerankScore != scored[j].RerankScore {
			return scored[i].RerankScore > scored[j].RerankScore
		}
		return scored[i].Similarity > scored[j].Similarity
	})
	return scored, nil
}

func sortBySimilarity(passages []types.Passage) {
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Similarity > passages[j].Similarity })
}

func hitsToPassages(hits []vectorstore.Hit) []types.Passage {
	out := make([]types.Passage, 0, len(hits))
	for _, h := range hits {
		out = append(out, types.Passage{
			VectorID:   h.ID,
			DocumentID: stringField(h.Metadata, "knowledge_id"),
			ChunkID:    stringField(h.Metadata, "chunk_id"),
			Text:       stringField(h.Metadata, "content"),
			Metadata:   h.Metadata,
			Similarity: h.Similarity,
		})
	}
	return out
}

func stringField(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

func mergeByVectorID(vectorLeg, keywordLeg []types.Passage) []types.Passage {
	seen := make(map[string]bool, len(vectorLeg))
	for _, p := range vectorLeg {
		seen[p.VectorID] = true
	}
	out := vectorLeg
	for _, p := range keywordLeg {
		if !seen[p.VectorID] {
			out = append(out, p)
			seen[p.VectorID] = true
		}
	}
	return out
}

// formatPassages implements spec.md §4.3 step 6's formatting.
func formatPassages(passages []types.Passage) string {
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[doc: %s#%s]\n%s", p.Filename(), p.ChunkID, p.Text))
	}
	return strings.Join(blocks, "\n\n")
}
