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

// ZhipuReranker adapted from models/rerank/zhipu_reranker.go.
type ZhipuReranker struct {
	modelName string
	apiKey    string
	baseURL   string
	client    *http.Client
}

type zhipuRerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	ReturnRawScores bool     `json:"return_raw_scores,omitempty"`
}

type zhipuRerankResponse struct {
	Results []RankResult `json:"results"`
}

func NewZhipuReranker(baseURL, apiKey, modelName string) *ZhipuReranker {
	if baseURL == "" {
		baseURL = "https://open.bigmodel.cn/api/paas/v4"
	}
	return &ZhipuReranker{modelName: modelName, apiKey: apiKey, baseURL: baseURL, client: &http.Client{}}
}

func (r *ZhipuReranker) ModelName() string { return r.modelName }

func (r *ZhipuReranker) Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error) {
	body := zhipuRerankRequest{Model: r.modelName, Query: query, Documents: documents, ReturnRawScores: true}
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
		logger.Errorf(ctx, "zhipu rerank error status=%s body=%s", resp.Status, string(respBody))
		return nil, fmt.Errorf("rerank API error: %s", resp.Status)
	}

	var parsed zhipuRerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rerank response: %w", err)
	}
	return parsed.Results, nil
}
