package embedding

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

type factoryOptions struct {
	logger *zap.Logger
	client *api.Client
}

// Option configures New.
type Option func(*factoryOptions)

// WithLogger sets the logger used while constructing the embedder.
func WithLogger(l *zap.Logger) Option {
	return func(o *factoryOptions) { o.logger = l }
}

// WithOllamaClient sets the client used by the ollama provider.
func WithOllamaClient(c *api.Client) Option {
	return func(o *factoryOptions) { o.client = c }
}

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache when
// cfg.CacheSize > 0.
func New(ctx context.Context, cfg config.EmbeddingConfig, opts ...Option) (Embedder, error) {
	o := &factoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderONNX:
		e, err = newONNXFromConfig(cfg, o.logger)
	case config.ProviderOllama:
		client := o.client
		if client == nil {
			if client, err = api.ClientFromEnvironment(); err != nil {
				return nil, fmt.Errorf("failed to create ollama client: %w", err)
			}
		}
		e, err = NewOllamaEmbedder(ctx, client, cfg.OllamaModel)
	case config.ProviderHash:
		o.logger.Warn("using hash embedder; retrieval quality is lexical only",
			zap.Int("dimensions", cfg.Dimensions))
		e = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e = cached
	}
	o.logger.Debug("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("name", e.Name()),
		zap.Int("dimensions", e.Dimensions()))
	return e, nil
}

func newONNXFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var tok Tokenizer
	tokPath := filepath.Join(cfg.ModelDir, "tokenizer.json")
	if ut, err := LoadTokenizer(tokPath); err != nil {
		logger.Warn("tokenizer unavailable, falling back to whitespace tokenizer",
			zap.String("path", tokPath), zap.Error(err))
		tok = &SimpleTokenizer{}
	} else {
		tok = ut
	}
	e, err := NewONNXEmbedder(ONNXConfig{
		ModelPath:   cfg.ONNXPath(),
		LibraryPath: cfg.ONNXLibrary,
		Name:        cfg.ModelID,
		Tokenizer:   tok,
		Dimensions:  cfg.Dimensions,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model from %s: %w", cfg.ModelDir, err)
	}
	return e, nil
}
