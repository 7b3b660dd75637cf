package embedding

import (
	"context"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/logger"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder is the remote Embed backend for any OpenAI-compatible
// embeddings endpoint, adapted from the default branch of
// models/embedding/embedder.go's NewEmbedder switch.
type OpenAIEmbedder struct {
	modelName  string
	dimensions int
	client     *openai.Client
}

func NewOpenAIEmbedder(baseURL, apiKey, modelName string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		modelName:  modelName,
		dimensions: dimensions,
		client:     openai.NewClientWithConfig(cfg),
	}
}

func (e *OpenAIEmbedder) ModelName() string { return e.modelName }
func (e *OpenAIEmbedder) Dimensions() int    { return e.dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	logger.Infof(ctx, "openai embed request model=%s mode=%s count=%d", e.modelName, mode, len(texts))
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.modelName),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("openai-embed", err)
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = normalise(d.Embedding)
	}
	return vectors, nil
}
