package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error wrapping core.ErrEmbeddingService if generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice is index-aligned with the input, has the same length,
	// and all vectors share one dimension.
	// Returns an error wrapping core.ErrEmbeddingService if any generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamFunc receives completion fragments as the model produces them.
// Returning an error stops the stream.
type StreamFunc func(ctx context.Context, chunk []byte) error

// ChatModel produces completions from an ordered list of role-tagged messages.
// Implementations must be thread-safe for concurrent use.
type ChatModel interface {
	// Complete generates the full answer for the conversation.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream generates the answer incrementally, invoking fn for each text
	// fragment. The sequence is finite and non-restartable; Stream returns
	// once the model signals completion or fn returns an error.
	Stream(ctx context.Context, messages []Message, fn StreamFunc) error
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and ChatModel instances,
// ensuring they share configuration and resources appropriately.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// ChatModel returns the chat completion service.
	// The returned ChatModel is safe for concurrent use.
	ChatModel() ChatModel

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
