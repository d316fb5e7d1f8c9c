package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaGenerator generates text with a model served by Ollama. The model is registered from
// the local GGUF weight file on first use, so no model is pulled from a remote registry.
type OllamaGenerator struct {
	client      *api.Client
	model       string
	weightsPath string
	logger      *zap.Logger
}

// Option configures an OllamaGenerator.
type Option func(*OllamaGenerator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *OllamaGenerator) { g.logger = l }
}

// NewOllamaGenerator returns a generator for model, registering weightsPath under that name
// when the server does not know it yet.
func NewOllamaGenerator(ctx context.Context, client *api.Client, model, weightsPath string, opts ...Option) (*OllamaGenerator, error) {
	g := &OllamaGenerator{
		client:      client,
		model:       model,
		weightsPath: weightsPath,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.ensureModel(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *OllamaGenerator) ensureModel(ctx context.Context) error {
	_, err := g.client.Show(ctx, &api.ShowRequest{Model: g.model})
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to query ollama for model %s: %w", g.model, err)
	}
	g.logger.Info("registering local model weights",
		zap.String("model", g.model), zap.String("path", g.weightsPath))
	return g.register(ctx)
}

// register uploads the weight file as a blob and creates the model from it.
func (g *OllamaGenerator) register(ctx context.Context) error {
	f, err := os.Open(g.weightsPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s (run ragpipe-fetch first)", ErrWeightsMissing, g.weightsPath)
	}
	if err != nil {
		return fmt.Errorf("failed to open model weights: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to hash model weights: %w", err)
	}
	digest := "sha256:" + hex.EncodeToString(h.Sum(nil))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind model weights: %w", err)
	}
	if err := g.client.CreateBlob(ctx, digest, f); err != nil {
		return fmt.Errorf("failed to upload model weights: %w", err)
	}

	req := &api.CreateRequest{
		Model: g.model,
		Files: map[string]string{filepath.Base(g.weightsPath): digest},
	}
	err = g.client.Create(ctx, req, func(p api.ProgressResponse) error {
		g.logger.Debug("ollama create", zap.String("status", p.Status))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create model %s: %w", g.model, err)
	}
	return nil
}

// Generate sends prompt verbatim (no chat template) and returns the completion unmodified.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	stream := false
	options := map[string]any{}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	req := &api.GenerateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Raw:     true,
		Stream:  &stream,
		Options: options,
	}
	var out strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return out.String(), nil
}

// Model returns the served model name.
func (g *OllamaGenerator) Model() string {
	return g.model
}

// Close is a no-op; the server owns the loaded model.
func (g *OllamaGenerator) Close() error {
	return nil
}
