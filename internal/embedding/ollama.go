package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragpipe/pkg/utils"
	"github.com/ollama/ollama/api"
)

// OllamaEmbedder embeds text through an Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder probes model once to learn its dimension.
func NewOllamaEmbedder(ctx context.Context, client *api.Client, model string) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{client: client, model: model}
	vecs, err := e.embed(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("failed to probe ollama embedding model %s: %w", model, err)
	}
	e.dimensions = len(vecs[0])
	return e, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	for i, v := range resp.Embeddings {
		if e.dimensions > 0 && len(v) != e.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.dimensions)
		}
		utils.NormalizeL2(resp.Embeddings[i])
	}
	return resp.Embeddings, nil
}

// Embed returns the embedding of one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in a single request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := e.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	return vecs, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

// Name returns "ollama:<model>".
func (e *OllamaEmbedder) Name() string { return "ollama:" + e.model }

// Close is a no-op; the HTTP client has no resources to release.
func (e *OllamaEmbedder) Close() error { return nil }
