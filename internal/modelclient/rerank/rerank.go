// Package rerank defines C1's Rerank capability (spec.md §4.1), adapted
// line-for-line in structure from models/rerank/jina_reranker.go and
// models/rerank/zhipu_reranker.go.
package rerank

import "context"

// RankResult is one reranked document's aligned score (spec.md §4.1
// "scores ... aligned by index").
type RankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SentinelFloor is the reserved "filtered out" score (spec.md §4.1/§4.3:
// "-∞ in practice -100").
const SentinelFloor = -100.0

// Reranker is the uniform interface every rerank backend implements.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error)
	ModelName() string
}
