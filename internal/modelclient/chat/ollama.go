package chat

import (
	"context"
	"net/url"

	"github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/logger"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaChat is the local Chat backend, adapted in structure from
// models/chat/ollama.go (request building, streaming-channel idiom) but
// retargeted from that file's message-delta contract to this package's
// token-level StreamChunk contract (spec.md §4.1).
type OllamaChat struct {
	modelName string
	client    *ollamaapi.Client
}

// NewOllamaChat builds an OllamaChat talking to baseURL (e.g.
// "http://localhost:11434").
func NewOllamaChat(baseURL, modelName string) (*OllamaChat, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewBadRequestError("invalid ollama base url: %v", err)
	}
	return &OllamaChat{
		modelName: modelName,
		client:    ollamaapi.NewClient(u, nil),
	}, nil
}

func (c *OllamaChat) ModelName() string { return c.modelName }

func (c *OllamaChat) convertMessages(messages []Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollamaapi.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *OllamaChat) buildRequest(messages []Message, opts Options, stream bool) *ollamaapi.ChatRequest {
	req := &ollamaapi.ChatRequest{
		Model:    c.modelName,
		Messages: c.convertMessages(messages),
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if opts.Temperature > 0 {
		req.Options["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		req.Options["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		req.Options["stop"] = opts.Stop
	}
	return req
}

// Chat runs a non-streaming completion (spec.md §4.1 "non-stream").
func (c *OllamaChat) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	req := c.buildRequest(messages, opts, false)
	logger.Infof(ctx, "ollama chat request model=%s", c.modelName)

	var content string
	var promptTokens, evalTokens int
	err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		content += resp.Message.Content
		if resp.EvalCount > 0 {
			promptTokens = resp.PromptEvalCount
			evalTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewBackendUnavailableError("ollama", err)
	}
	return &Response{Content: content, PromptTokens: promptTokens, OutputTokens: evalTokens}, nil
}

// ChatStream runs a streaming completion, forwarding each token-level delta
// as soon as it arrives — true token-level streaming per spec.md §4.1/§8
// property 3.
func (c *OllamaChat) ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	req := c.buildRequest(messages, opts, true)
	logger.Infof(ctx, "ollama chat stream request model=%s", c.modelName)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			if resp.Message.Content != "" {
				select {
				case out <- StreamChunk{Content: resp.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if resp.Done {
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Errorf(ctx, "ollama chat stream failed: %v", err)
			select {
			case out <- StreamChunk{Err: errors.NewBackendUnavailableError("ollama", err), Done: true}:
			default:
			}
		}
	}()
	return out, nil
}
