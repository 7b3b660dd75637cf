package rerank

import rerr "github.com/weknora-chat/ragstream/internal/errors"

// Config selects one of the two rerank providers the teacher's
// rerank package already speaks.
type Config struct {
	Provider  string // "jina" or "zhipu"
	BaseURL   string
	APIKey    string
	ModelName string
}

// New builds the configured Reranker.
func New(cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case "zhipu":
		return NewZhipuReranker(cfg.BaseURL, cfg.APIKey, cfg.ModelName), nil
	case "jina", "":
		return NewJinaReranker(cfg.BaseURL, cfg.APIKey, cfg.ModelName), nil
	default:
		return nil, rerr.NewBadRequestError("unknown rerank provider %q", cfg.Provider)
	}
}
