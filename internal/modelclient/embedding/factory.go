package embedding

import rerr "github.com/weknora-chat/ragstream/internal/errors"

// Config mirrors config.ModelBackendConfig's embedding fields plus the
// output dimension, matching models/embedding/embedder.go's Config shape.
type Config struct {
	Source     string
	BaseURL    string
	APIKey     string
	ModelName  string
	Dimensions int
}

// New builds the Embedder for a capability, switching on Source exactly as
// embedder.go's NewEmbedder does (local/remote branch kept; the teacher's
// further per-provider branching for Aliyun/Jina/Volcengine multimodal
// endpoints is out of scope here since SPEC_FULL.md treats embedding as a
// single OpenAI-compatible or Ollama capability, not a multimodal one).
func New(cfg Config) (Embedder, error) {
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1024
	}
	switch cfg.Source {
	case "local":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.ModelName, dims)
	case "remote", "":
		if cfg.APIKey == "" {
			return nil, rerr.NewBadRequestError("remote embedding backend requires an api key")
		}
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.ModelName, dims), nil
	default:
		return nil, rerr.NewBadRequestError("unknown embedding backend source %q", cfg.Source)
	}
}
