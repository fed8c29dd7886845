// Package llm provides the client for the external chat and embedding
// services. Both capabilities are opaque to the rest of the pipeline: text in,
// text (or a fixed-length vector) out.
package llm

import (
	"context"
	"errors"
)

// Message is one chat message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer generates text from the chat service.
type Completer interface {
	// Complete sends a single prompt and returns the full response text.
	Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (string, error)

	// CompleteStreaming sends a message history and streams the response,
	// invoking onChunk for each text increment in arrival order. It returns
	// the full concatenated text once the stream finishes.
	CompleteStreaming(ctx context.Context, messages []Message, systemPrompt string, maxTokens int, onChunk func(chunk string)) (string, error)
}

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelTag identifies the embedding model; vectors from different tags
	// are not comparable.
	ModelTag() string
}

// Sentinel errors surfaced to callers. The messages are user-visible.
var (
	ErrNoAPIKey    = errors.New("no API key configured")
	ErrRateLimited = errors.New("rate limited, wait and retry")
)
