package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/types"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchKeyword is the additive BM25 leg (SPEC_FULL.md §C.3),
// grounded on handler/system.go's getKeywordIndexEngine recognizing
// "elasticsearch_v8" as a configured keyword-retrieval driver.
type ElasticsearchKeyword struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchKeyword(addresses []string, index string) (*ElasticsearchKeyword, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("elasticsearch", err)
	}
	return &ElasticsearchKeyword{client: client, index: index}, nil
}

type esSearchBody struct {
	Query esQuery `json:"query"`
	Size  int     `json:"size"`
}

type esQuery struct {
	Match map[string]string `json:"match"`
}

type esHit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type esResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esDocSource struct {
	KnowledgeID string `json:"knowledge_id"`
	ChunkID     string `json:"chunk_id"`
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Permission  int    `json:"permission"`
}

// Search runs a BM25 match query over the content field, translating hits
// into Passages carrying Similarity set from the normalized BM25 score so
// mergeByVectorID/sortBySimilarity can treat both legs uniformly.
func (k *ElasticsearchKeyword) Search(ctx context.Context, query string, n int) ([]types.Passage, error) {
	body, err := json.Marshal(esSearchBody{Query: esQuery{Match: map[string]string{"content": query}}, Size: n})
	if err != nil {
		return nil, rerr.NewBackendProtocolError("elasticsearch", err)
	}
	req := esapi.SearchRequest{Index: []string{k.index}, Body: strings.NewReader(string(body))}
	res, err := req.Do(ctx, k.client)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, rerr.NewBackendUnavailableError("elasticsearch", fmt.Errorf("search returned status %s", res.Status()))
	}

	var parsed esResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, rerr.NewBackendProtocolError("elasticsearch", err)
	}

	passages := make([]types.Passage, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		var src esDocSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		passages = append(passages, types.Passage{
			VectorID:   h.ID,
			DocumentID: src.KnowledgeID,
			ChunkID:    src.ChunkID,
			Text:       src.Content,
			Metadata: map[string]any{
				"filename":   src.Filename,
				"permission": src.Permission,
			},
			Similarity: normalizeBM25(h.Score),
		})
	}
	return passages, nil
}

// normalizeBM25 squashes an unbounded BM25 score into (0,1) so keyword-leg
// hits sort comparably with cosine-similarity hits from the vector leg;
// exact calibration doesn't matter since the rerank stage re-scores
// everything anyway.
func normalizeBM25(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 10)
}
