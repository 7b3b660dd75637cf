package chat

import (
	rerr "github.com/weknora-chat/ragstream/internal/errors"
)

// Config mirrors config.ModelBackendConfig without importing the config
// package (avoids an import cycle; cmd/server adapts one into the other).
// Grounded on models/embedding/embedder.go's Config{Source, BaseURL, ...}.
type Config struct {
	Source    string // "local" or "remote"
	BaseURL   string
	APIKey    string
	ModelName string
}

// New builds the Chat backend for a capability, switching on Source exactly
// as embedder.go's NewEmbedder does for embeddings.
func New(cfg Config) (Chat, error) {
	switch cfg.Source {
	case "local":
		return NewOllamaChat(cfg.BaseURL, cfg.ModelName)
	case "remote", "":
		if cfg.APIKey == "" {
			return nil, rerr.NewBadRequestError("remote chat backend requires an api key")
		}
		return NewOpenAIChat(cfg.BaseURL, cfg.APIKey, cfg.ModelName), nil
	default:
		return nil, rerr.NewBadRequestError("unknown chat backend source %q", cfg.Source)
	}
}
