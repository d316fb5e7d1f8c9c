// Package collection is the vector store adapter: a persistent named collection of embedded
// chunks, searched in memory by cosine similarity.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/hyperjump/ragpipe/internal/embedding"
	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/internal/storage"
	"github.com/hyperjump/ragpipe/internal/vector"
	"go.uber.org/zap"
)

// Collection is a named set of (id, text, embedding) items backed by Storage.
type Collection struct {
	store    storage.Storage
	embedder embedding.Embedder
	index    vector.Index
	meta     models.Collection
	texts    map[string]string
	logger   *zap.Logger
	mu       sync.RWMutex
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// Open returns the named collection, creating it when it does not exist.
func Open(ctx context.Context, store storage.Storage, name string, emb embedding.Embedder, opts ...Option) (*Collection, error) {
	meta, err := store.GetCollection(ctx, name)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		meta = &models.Collection{Name: name, Dimensions: emb.Dimensions(), Embedder: emb.Name()}
		if err := store.CreateCollection(ctx, meta); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	return open(ctx, store, meta, emb, opts...)
}

// Load returns the named collection only if it already exists; otherwise the error
// wraps storage.ErrCollectionNotFound.
func Load(ctx context.Context, store storage.Storage, name string, emb embedding.Embedder, opts ...Option) (*Collection, error) {
	meta, err := store.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return open(ctx, store, meta, emb, opts...)
}

func open(ctx context.Context, store storage.Storage, meta *models.Collection, emb embedding.Embedder, opts ...Option) (*Collection, error) {
	if meta.Dimensions != emb.Dimensions() {
		return nil, fmt.Errorf("%w: collection %s stores %d-dimensional vectors, embedder %s produces %d",
			embedding.ErrDimensionMismatch, meta.Name, meta.Dimensions, emb.Name(), emb.Dimensions())
	}
	index, err := vector.NewMemoryIndex(meta.Dimensions)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		store:    store,
		embedder: emb,
		index:    index,
		meta:     *meta,
		texts:    make(map[string]string),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if meta.Embedder != "" && meta.Embedder != emb.Name() {
		c.logger.Warn("collection was built with a different embedder",
			zap.String("collection", meta.Name),
			zap.String("stored", meta.Embedder),
			zap.String("current", emb.Name()))
	}

	items, err := store.ListItems(ctx, meta.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", meta.Name, err)
	}
	ids := make([]string, len(items))
	vecs := make([][]float32, len(items))
	for i, it := range items {
		ids[i] = it.ID
		vecs[i] = it.Embedding
		c.texts[it.ID] = it.Text
	}
	if err := index.Add(ctx, ids, vecs); err != nil {
		return nil, fmt.Errorf("failed to index collection %s: %w", meta.Name, err)
	}
	c.logger.Debug("collection opened", zap.String("collection", meta.Name), zap.Int("items", len(items)))
	return c, nil
}

// InsertIfEmpty embeds texts in one batch and stores them with IDs "0", "1", ... when the
// collection has no items. A non-empty collection is left untouched and 0 is returned,
// without calling the embedder.
func (c *Collection) InsertIfEmpty(ctx context.Context, texts []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index.Size() > 0 {
		c.logger.Debug("collection already populated, skipping insert",
			zap.String("collection", c.meta.Name), zap.Int("items", c.index.Size()))
		return 0, nil
	}
	if len(texts) == 0 {
		return 0, nil
	}

	chunks, err := c.embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if err := c.store.InsertItems(ctx, c.meta.Name, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := c.add(ctx, chunks); err != nil {
		return 0, err
	}
	c.logger.Info("collection populated", zap.String("collection", c.meta.Name), zap.Int("items", len(chunks)))
	return len(chunks), nil
}

// Replace swaps the collection contents for texts. The new chunks are embedded before
// anything is touched; a failure at any step leaves the stored and in-memory items as they were.
func (c *Collection) Replace(ctx context.Context, texts []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks, err := c.embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	index, err := vector.NewMemoryIndex(c.meta.Dimensions)
	if err != nil {
		return 0, err
	}
	ids, vecs := split(chunks)
	if err := index.Add(ctx, ids, vecs); err != nil {
		return 0, fmt.Errorf("failed to index chunks: %w", err)
	}
	if err := c.store.ReplaceItems(ctx, c.meta.Name, chunks); err != nil {
		return 0, fmt.Errorf("failed to replace chunks: %w", err)
	}

	c.index = index
	c.texts = make(map[string]string, len(chunks))
	for _, ch := range chunks {
		c.texts[ch.ID] = ch.Text
	}
	c.logger.Info("collection replaced", zap.String("collection", c.meta.Name), zap.Int("items", len(chunks)))
	return len(chunks), nil
}

func (c *Collection) embed(ctx context.Context, texts []string) ([]models.Chunk, error) {
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{ID: strconv.Itoa(i), Index: i, Text: t, Embedding: vecs[i]}
	}
	return chunks, nil
}

func (c *Collection) add(ctx context.Context, chunks []models.Chunk) error {
	ids, vecs := split(chunks)
	if err := c.index.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	for _, ch := range chunks {
		c.texts[ch.ID] = ch.Text
	}
	return nil
}

func split(chunks []models.Chunk) ([]string, [][]float32) {
	ids := make([]string, len(chunks))
	vecs := make([][]float32, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
		vecs[i] = ch.Embedding
	}
	return ids, vecs
}

// Query returns up to k items ranked by cosine similarity to vec.
func (c *Collection) Query(ctx context.Context, vec []float32, k int) ([]models.Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	results, err := c.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", c.meta.Name, err)
	}
	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.Hit{ID: r.ID, Text: c.texts[r.ID], Score: r.Score}
	}
	return hits, nil
}

// Count returns the number of items.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Size()
}

// Info returns the collection metadata.
func (c *Collection) Info() models.Collection {
	return c.meta
}

// Embedder returns the embedder the collection was opened with; queries must use it too.
func (c *Collection) Embedder() embedding.Embedder {
	return c.embedder
}
