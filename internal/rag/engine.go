// Package rag answers questions by retrieving chunks from a collection and prompting a
// language model with them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/llm"
	"github.com/hyperjump/ragpipe/internal/models"
	"go.uber.org/zap"
)

// ContextSeparator joins retrieved chunk texts into the prompt context.
const ContextSeparator = "\n\n"

// DefaultPromptTemplate is used when no template is configured.
const DefaultPromptTemplate = config.DefaultPromptTemplate

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Store is the part of a collection the engine reads from.
type Store interface {
	Query(ctx context.Context, vec []float32, k int) ([]models.Hit, error)
}

// QueryEmbedder embeds a question with the same model that embedded the collection.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs retrieve -> prompt -> generate.
type Engine struct {
	store          Store
	embedder       QueryEmbedder
	generator      llm.Generator
	template       string
	defaultResults int
	genOpts        llm.GenerateOptions
	logger         *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPromptTemplate overrides the prompt; {context} and {question} are substituted.
func WithPromptTemplate(t string) Option {
	return func(e *Engine) {
		if t != "" {
			e.template = t
		}
	}
}

// WithDefaultResults sets the number of chunks retrieved when Answer is called with n <= 0.
func WithDefaultResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultResults = n
		}
	}
}

// WithGenerateOptions sets the generation limits.
func WithGenerateOptions(o llm.GenerateOptions) Option {
	return func(e *Engine) { e.genOpts = o }
}

// NewEngine returns an engine over store. The defaults are 3 retrieved chunks and 200 tokens.
func NewEngine(store Store, embedder QueryEmbedder, generator llm.Generator, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		embedder:       embedder,
		generator:      generator,
		template:       DefaultPromptTemplate,
		defaultResults: 3,
		genOpts:        llm.GenerateOptions{MaxTokens: 200},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve embeds query and returns the n most similar chunks, best first.
func (e *Engine) Retrieve(ctx context.Context, query string, n int) ([]models.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if n <= 0 {
		n = e.defaultResults
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := e.store.Query(ctx, vec, n)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve: %w", err)
	}
	return hits, nil
}

// Answer retrieves n chunks (the default when n <= 0), builds the prompt and returns the
// model's raw completion.
func (e *Engine) Answer(ctx context.Context, query string, n int) (*models.Answer, error) {
	start := time.Now()
	hits, err := e.Retrieve(ctx, query, n)
	if err != nil {
		return nil, err
	}
	contextText := BuildContext(hits)
	prompt := BuildPrompt(e.template, contextText, query)
	e.logger.Debug("prompt built",
		zap.Int("hits", len(hits)),
		zap.Int("prompt_chars", len([]rune(prompt))))

	text, err := e.generator.Generate(ctx, prompt, e.genOpts)
	if err != nil {
		return nil, err
	}
	return &models.Answer{
		Query:   query,
		Text:    text,
		Context: contextText,
		Prompt:  prompt,
		Hits:    hits,
		TookMs:  time.Since(start).Milliseconds(),
	}, nil
}

// BuildContext joins hit texts in rank order.
func BuildContext(hits []models.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, ContextSeparator)
}

// BuildPrompt substitutes {context} and {question} in template. The substituted values are
// not scanned again, so a question containing "{context}" is left as typed.
func BuildPrompt(template, contextText, question string) string {
	return strings.NewReplacer("{context}", contextText, "{question}", question).Replace(template)
}
