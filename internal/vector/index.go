// Package vector provides vector index and similarity search.
package vector

import "context"

// Index stores vectors under string IDs and returns the nearest ones to a query.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Size() int
}

// Result is a single vector search hit.
type Result struct {
	ID string
	// Score is the cosine similarity in [-1, 1].
	Score float64
}
