// Package chat defines the uniform Chat capability of C1 Model Clients
// (spec.md §4.1), polymorphic over local/remote backends exactly as the
// teacher splits ollama vs. OpenAI-compatible providers
// (models/chat/ollama.go, models/provider/*.go).
package chat

import (
	"context"
)

// Role mirrors the conventional chat-completion roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one (role, content) turn sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options carries sampling parameters and the tool-presence hint (spec.md
// §4.1).
type Options struct {
	Temperature   float64
	TopP          float64
	MaxTokens     int
	Stop          []string
	ToolsPresent  bool
	Stream        bool
}

// Response is the non-streaming completion result.
type Response struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// StreamChunk is one token-level piece of a streaming completion (spec.md
// §4.1 "stream"). Err is set (and Done is true) when the stream terminates
// abnormally; a normal end-of-stream sends a final chunk with Done true and
// no Err, then closes the channel.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// Chat is the uniform interface every chat backend (local Ollama, remote
// OpenAI-compatible) implements. Failures use errors.KindBackend* (spec.md
// §4.1 "Failures").
type Chat interface {
	// Chat runs a non-streaming completion.
	Chat(ctx context.Context, messages []Message, opts Options) (*Response, error)
	// ChatStream runs a streaming completion; the returned channel is closed
	// by the implementation when generation ends or ctx is cancelled — it
	// guarantees no mid-code-point split at the chunk boundaries it emits
	// (spec.md §4.1).
	ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error)
	// ModelName reports the backend's configured model identifier, used in
	// log lines and error messages.
	ModelName() string
}
