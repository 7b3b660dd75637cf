package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/weknora-chat/ragstream/internal/logger"
)

// JinaReranker adapted near-verbatim from models/rerank/jina_reranker.go.
type JinaReranker struct {
	modelName string
	apiKey    string
	baseURL   string
	client    *http.Client
}

type jinaRerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
}

type jinaRerankResponse struct {
	Model   string       `json:"model"`
	Results []RankResult `json:"results"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewJinaReranker builds a Jina-backed Reranker; baseURL defaults to Jina's
// public endpoint when empty.
func NewJinaReranker(baseURL, apiKey, modelName string) *JinaReranker {
	if baseURL == "" {
		baseURL = "https://api.jina.ai/v1"
	}
	return &JinaReranker{modelName: modelName, apiKey: apiKey, baseURL: baseURL, client: &http.Client{}}
}

func (r *JinaReranker) ModelName() string { return r.modelName }

func (r *JinaReranker) Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error) {
	body := jinaRerankRequest{Model: r.modelName, Query: query, Documents: documents, ReturnDocuments: true}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	logger.Infof(ctx, "curl -X POST %s/rerank -H \"Authorization: Bearer ***\" -d '%s'", r.baseURL, string(payload))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do rerank request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Errorf(ctx, "jina rerank error status=%s body=%s", resp.Status, string(respBody))
		return nil, fmt.Errorf("rerank API error: %s", resp.Status)
	}

	var parsed jinaRerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rerank response: %w", err)
	}
	return parsed.Results, nil
}
