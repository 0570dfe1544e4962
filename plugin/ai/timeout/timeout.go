// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

const (
	// EmbeddingTimeout bounds a single embedding request.
	EmbeddingTimeout = 30 * time.Second

	// IndexTimeout bounds a vector index write or delete.
	IndexTimeout = 10 * time.Second

	// RetrievalTimeout bounds context assembly, embedding the query included.
	RetrievalTimeout = 15 * time.Second

	// GenerationTimeout is the default bound on an LLM completion.
	GenerationTimeout = 60 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
