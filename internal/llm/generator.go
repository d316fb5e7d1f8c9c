// Package llm runs text generation against a locally served language model.
package llm

import (
	"context"
	"errors"
)

// GenerateOptions bounds a single completion.
type GenerateOptions struct {
	MaxTokens int
	// Temperature is passed through when positive; zero keeps the model default.
	Temperature float64
}

// Generator produces a completion for a prompt. The returned text is the raw model output.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Close() error
}

// ErrWeightsMissing is returned when the model is not registered and the local weight file
// does not exist either.
var ErrWeightsMissing = errors.New("model weights not found")
