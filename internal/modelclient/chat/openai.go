package chat

import (
	"context"
	"errors"
	"io"

	rerr "github.com/weknora-chat/ragstream/internal/errors"
	"github.com/weknora-chat/ragstream/internal/logger"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat is the remote Chat backend for any OpenAI-compatible endpoint
// (the teacher's "provider" concept — models/provider/*.go's
// ProviderOpenAI/ProviderAliyun/ProviderZhipu/... all speak this same wire
// format against different BaseURLs). Grounded on the provider registry's
// detection/validation pattern, built on sashabaranov/go-openai's client.
type OpenAIChat struct {
	modelName string
	client    *openai.Client
}

// NewOpenAIChat builds an OpenAIChat for any OpenAI-compatible base URL
// (OpenAI itself, or a compatible gateway such as Aliyun/Zhipu/DeepSeek —
// see models/provider's DetectProvider for the corresponding URL table).
func NewOpenAIChat(baseURL, apiKey, modelName string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{modelName: modelName, client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIChat) ModelName() string { return c.modelName }

func (c *OpenAIChat) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Chat runs a non-streaming completion.
func (c *OpenAIChat) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    c.convertMessages(messages),
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	}
	logger.Infof(ctx, "openai chat request model=%s", c.modelName)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, rerr.NewBackendProtocolError("openai", errors.New("empty choices"))
	}
	return &Response{
		Content:      resp.Choices[0].Message.Content,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ChatStream runs a streaming completion via SSE under the hood, forwarding
// each delta the instant it arrives (spec.md §4.1/§8 property 3).
func (c *OpenAIChat) ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    c.convertMessages(messages),
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
		Stream:      true,
	}
	logger.Infof(ctx, "openai chat stream request model=%s", c.modelName)

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, rerr.NewBackendUnavailableError("openai", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Errorf(ctx, "openai chat stream failed: %v", err)
				select {
				case out <- StreamChunk{Err: rerr.NewBackendUnavailableError("openai", err), Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamChunk{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
