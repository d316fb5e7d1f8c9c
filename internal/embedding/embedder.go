// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
)

// Embedder produces vector embeddings for text. Vectors are L2-normalised and every vector
// returned by one Embedder has length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the model so a collection can record what built it.
	Name() string
	Close() error
}

// ErrDimensionMismatch is returned when a provider yields vectors of an unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
