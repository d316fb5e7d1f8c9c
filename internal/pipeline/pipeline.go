// Package pipeline sequences ingestion: load documents, chunk them, and populate the
// collection, falling back to a previously built collection when there is nothing to ingest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/ragpipe/internal/chunker"
	"github.com/hyperjump/ragpipe/internal/collection"
	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/embedding"
	"github.com/hyperjump/ragpipe/internal/extract"
	"github.com/hyperjump/ragpipe/internal/loader"
	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/internal/storage"
	"go.uber.org/zap"
)

// ErrNoData is returned when there are no chunks to ingest and no existing collection.
var ErrNoData = errors.New("no documents and no existing collection")

// State is the pipeline lifecycle position.
type State int

const (
	StateStart State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report summarises one ingestion run.
type Report struct {
	DataDirMissing bool
	Documents      int
	Failures       []*extract.Error
	Chunks         int
	// Inserted is 0 when the collection was already populated.
	Inserted int
	// Existing is true when nothing was ingested and a stored collection was loaded instead.
	Existing   bool
	Collection models.Collection
	Items      int
	Took       time.Duration
}

// Pipeline owns the collection once Prepare succeeds.
type Pipeline struct {
	dataDir        string
	collectionName string
	loader         *loader.Loader
	chunker        *chunker.Chunker
	store          storage.Storage
	embedder       embedding.Embedder
	logger         *zap.Logger

	mu    sync.Mutex
	coll  *collection.Collection
	state State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed down to the loader and collection.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline from cfg. The chunk window is validated here.
func New(cfg *config.Config, store storage.Storage, emb embedding.Embedder, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		dataDir:        cfg.Data.Directory,
		collectionName: cfg.Storage.Collection,
		store:          store,
		embedder:       emb,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.OverlapOrDefault(),
		chunker.WithMinLength(cfg.Chunking.MinLengthOrDefault()))
	if err != nil {
		return nil, err
	}
	p.chunker = ch
	p.loader = loader.New(loader.WithExtensions(cfg.Data.Extensions), loader.WithLogger(p.logger))
	return p, nil
}

// Prepare runs ingestion and leaves the pipeline READY, or returns ErrNoData when there
// is nothing to ingest and no stored collection to fall back to.
func (p *Pipeline) Prepare(ctx context.Context) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	report, chunks, err := p.ingest()
	if err != nil {
		p.state = StateFailed
		return report, err
	}

	if len(chunks) > 0 {
		if p.coll == nil {
			p.coll, err = collection.Open(ctx, p.store, p.collectionName, p.embedder, collection.WithLogger(p.logger))
			if err != nil {
				p.state = StateFailed
				return report, fmt.Errorf("failed to open collection: %w", err)
			}
		}
		report.Inserted, err = p.coll.InsertIfEmpty(ctx, chunks)
		if err != nil {
			p.state = StateFailed
			return report, err
		}
	} else if p.coll == nil {
		p.logger.Info("no chunks to ingest, loading existing collection", zap.String("collection", p.collectionName))
		p.coll, err = collection.Load(ctx, p.store, p.collectionName, p.embedder, collection.WithLogger(p.logger))
		if errors.Is(err, storage.ErrCollectionNotFound) {
			p.state = StateFailed
			return report, ErrNoData
		}
		if err != nil {
			p.state = StateFailed
			return report, fmt.Errorf("failed to load collection: %w", err)
		}
		report.Existing = true
	}

	p.state = StateReady
	p.fill(report, start)
	return report, nil
}

// Reindex rebuilds the collection from the data directory. When the directory yields no
// chunks, or embedding or storing the new chunks fails, the collection is left as it is.
func (p *Pipeline) Reindex(ctx context.Context) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	report, chunks, err := p.ingest()
	if err != nil {
		return report, err
	}
	if len(chunks) == 0 {
		return report, ErrNoData
	}
	coll := p.coll
	if coll == nil {
		coll, err = collection.Open(ctx, p.store, p.collectionName, p.embedder, collection.WithLogger(p.logger))
		if err != nil {
			return report, fmt.Errorf("failed to open collection: %w", err)
		}
	}
	report.Inserted, err = coll.Replace(ctx, chunks)
	if err != nil {
		return report, err
	}
	p.coll = coll
	p.state = StateReady
	p.fill(report, start)
	return report, nil
}

func (p *Pipeline) ingest() (*Report, []string, error) {
	report := &Report{}
	res, err := p.loader.Load(p.dataDir)
	switch {
	case errors.Is(err, loader.ErrDataDirMissing):
		p.logger.Warn("data directory not found", zap.String("path", p.dataDir))
		report.DataDirMissing = true
	case err != nil:
		return report, nil, err
	}
	report.Documents = len(res.Documents)
	report.Failures = res.Failures

	chunks := p.chunker.Split(res.Texts())
	report.Chunks = len(chunks)
	p.logger.Info("documents chunked",
		zap.Int("documents", report.Documents),
		zap.Int("failed", len(report.Failures)),
		zap.Int("chunks", report.Chunks))
	return report, chunks, nil
}

func (p *Pipeline) fill(r *Report, start time.Time) {
	r.Collection = p.coll.Info()
	r.Items = p.coll.Count()
	r.Took = time.Since(start)
}

// Collection returns the READY collection, or nil before a successful Prepare.
func (p *Pipeline) Collection() *collection.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coll
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
