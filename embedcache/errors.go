package embedcache

import "errors"

var (
	// ErrEmbedderRequired is returned when an inner embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrModelRequired is returned when an embedding model name is not provided.
	ErrModelRequired = errors.New("embedding model required")
)
