package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/ragpipe/pkg/utils"
)

// HashEmbedder is a deterministic feature-hashing embedder. Each lower-cased word and each
// character trigram is hashed into one signed bucket, so texts sharing vocabulary land close
// together. It needs no model files and is used in tests and as an offline fallback.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder of the given dimensions (384 when <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the normalised hashed feature vector of text. Empty text yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		e.add(emb, "w:"+word, 1)
		r := []rune(word)
		for i := 0; i+3 <= len(r); i++ {
			e.add(emb, "t:"+string(r[i:i+3]), 0.5)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashEmbedder) add(emb []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := sum % uint64(e.dimensions)
	if sum>>63 == 1 {
		weight = -weight
	}
	emb[idx] += weight
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "hash-<dimensions>".
func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.dimensions)
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
