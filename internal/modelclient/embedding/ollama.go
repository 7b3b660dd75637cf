package embedding

import (
	"context"
	"math"
	"net/url"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/logger"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaEmbedder is the local Embed backend, adapted from the
// local-source branch of models/embedding/embedder.go's NewEmbedder switch.
type OllamaEmbedder struct {
	modelName  string
	dimensions int
	client     *ollamaapi.Client
}

func NewOllamaEmbedder(baseURL, modelName string, dimensions int) (*OllamaEmbedder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, rerr.NewBadRequestError("invalid ollama base url: %v", err)
	}
	return &OllamaEmbedder{
		modelName:  modelName,
		dimensions: dimensions,
		client:     ollamaapi.NewClient(u, nil),
	}, nil
}

func (e *OllamaEmbedder) ModelName() string { return e.modelName }
func (e *OllamaEmbedder) Dimensions() int    { return e.dimensions }

// Embed issues one batched embedding request per call. mode is only logged:
// query and passage inputs are sent identically, with no instruction prefix,
// so query vectors stay comparable to passage vectors (spec.md §4.1).
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	logger.Infof(ctx, "ollama embed request model=%s mode=%s count=%d", e.modelName, mode, len(texts))
	resp, err := e.client.Embed(ctx, &ollamaapi.EmbedRequest{
		Model: e.modelName,
		Input: texts,
	})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("ollama-embed", err)
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		vectors[i] = normalise(v)
	}
	return vectors, nil
}

func normalise(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
