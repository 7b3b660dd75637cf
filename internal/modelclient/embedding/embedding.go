// Package embedding defines C1's Embed capability, adapted from
// models/embedding/embedder.go's Embedder interface and factory switch.
package embedding

import "context"

// Mode selects the embedding variant (spec.md §4.1 "query mode must produce
// vectors comparable to passage vectors under cosine similarity").
type Mode string

const (
	ModePassage Mode = "passage"
	ModeQuery   Mode = "query"
)

// Embedder is the uniform interface every embedding backend implements.
type Embedder interface {
	// Embed returns one unit-normalised vector per input text.
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
	// Dimensions reports the fixed vector width (conventionally 1024).
	Dimensions() int
	// ModelName reports the backend's configured model identifier.
	ModelName() string
}
