package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/embedding"
	"github.com/hyperjump/ragpipe/internal/llm"
	"github.com/hyperjump/ragpipe/internal/rag"
	"github.com/hyperjump/ragpipe/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGenerator struct {
	prompts []string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return "generated", nil
}

func (g *recordingGenerator) Close() error { return nil }

// switchEmbedder fails every batch once fail is set.
type switchEmbedder struct {
	embedding.Embedder
	fail atomic.Bool
}

var errEmbedDown = errors.New("embedder down")

func (s *switchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail.Load() {
		return nil, errEmbedDown
	}
	return s.Embedder.EmbedBatch(ctx, texts)
}

type env struct {
	cfg   *config.Config
	store *storage.SQLiteStorage
	emb   embedding.Embedder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Data.Directory = filepath.Join(root, "data")
	cfg.Storage.Path = filepath.Join(root, "db_storage")
	require.NoError(t, os.MkdirAll(cfg.Data.Directory, 0755))
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &env{cfg: cfg, store: store, emb: embedding.NewHashEmbedder(64)}
}

func (e *env) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.Data.Directory, name), []byte(content), 0600))
}

func (e *env) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(e.cfg, e.store, e.emb)
	require.NoError(t, err)
	return p
}

func TestPrepare_singleShortDocument(t *testing.T) {
	e := newEnv(t)
	text := strings.Repeat("dharma ", 11) + "yoga" // 81 chars
	text = text[:80]
	e.write(t, "a.txt", text)

	p := e.pipeline(t)
	report, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Items)
	assert.Equal(t, StateReady, p.State())

	gen := &recordingGenerator{}
	coll := p.Collection()
	engine := rag.NewEngine(coll, coll.Embedder(), gen)
	ans, err := engine.Answer(context.Background(), "What is dharma?", 1)
	require.NoError(t, err)
	assert.Equal(t, "generated", ans.Text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Context:\n"+text+"\n\nQuestion: What is dharma?")
}

func TestPrepare_tooShortAndNoCollection(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", "0123456789")

	p := e.pipeline(t)
	report, err := p.Prepare(context.Background())
	assert.True(t, errors.Is(err, ErrNoData), "got %v", err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 0, report.Chunks)
	assert.Equal(t, StateFailed, p.State())
	assert.Nil(t, p.Collection())

	_, err = e.store.GetCollection(context.Background(), e.cfg.Storage.Collection)
	assert.True(t, errors.Is(err, storage.ErrCollectionNotFound), "no collection may be created")
}

func TestPrepare_zeroMinLengthKeepsShortDocument(t *testing.T) {
	e := newEnv(t)
	zero := 0
	e.cfg.Chunking.MinLength = &zero
	e.write(t, "a.txt", "0123456789")

	report, err := e.pipeline(t).Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 1, report.Items)
}

func TestPrepare_fallsBackToExistingCollection(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", strings.Repeat("x", 120))
	_, err := e.pipeline(t).Prepare(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(e.cfg.Data.Directory))
	p := e.pipeline(t)
	report, err := p.Prepare(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DataDirMissing)
	assert.True(t, report.Existing)
	assert.Equal(t, 1, report.Items)
	assert.Equal(t, StateReady, p.State())
}

func TestPrepare_secondRunDoesNotReinsert(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", strings.Repeat("first version ", 20))
	_, err := e.pipeline(t).Prepare(context.Background())
	require.NoError(t, err)

	e.write(t, "b.txt", strings.Repeat("added later ", 20))
	report, err := e.pipeline(t).Prepare(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.Chunks, report.Items)
	assert.Equal(t, 0, report.Inserted, "a populated collection is never modified")
}

func TestPrepare_emptyDataDirectory(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline(t).Prepare(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestPrepare_recordsExtractionFailures(t *testing.T) {
	e := newEnv(t)
	e.write(t, "broken.pdf", "not a pdf")
	e.write(t, "ok.txt", strings.Repeat("y", 60))
	report, err := e.pipeline(t).Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Len(t, report.Failures, 1)
}

func TestReindex(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", strings.Repeat("old text ", 10))
	p := e.pipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)
	coll := p.Collection()

	e.write(t, "a.txt", strings.Repeat("new text ", 30))
	report, err := p.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Chunks, report.Inserted)
	assert.Same(t, coll, p.Collection(), "reindex keeps the collection instance")

	vec, _ := e.emb.Embed(context.Background(), "new text")
	hits, err := coll.Query(context.Background(), vec, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "new text")
}

func TestReindex_noChunksKeepsCollection(t *testing.T) {
	e := newEnv(t)
	e.write(t, "a.txt", strings.Repeat("kept ", 20))
	p := e.pipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)
	before := p.Collection().Count()

	require.NoError(t, os.Remove(filepath.Join(e.cfg.Data.Directory, "a.txt")))
	_, err = p.Reindex(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, before, p.Collection().Count())
}

func TestReindex_embedFailureKeepsCollection(t *testing.T) {
	e := newEnv(t)
	emb := &switchEmbedder{Embedder: e.emb}
	e.emb = emb
	e.write(t, "a.txt", strings.Repeat("kept ", 20))
	p := e.pipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.Collection().Count())

	e.write(t, "b.txt", strings.Repeat("never stored ", 20))
	emb.fail.Store(true)
	_, err = p.Reindex(context.Background())
	assert.True(t, errors.Is(err, errEmbedDown), "got %v", err)

	assert.Equal(t, 1, p.Collection().Count())
	stored, err := e.store.CountItems(context.Background(), e.cfg.Storage.Collection)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored)
	assert.Equal(t, StateReady, p.State())
}

func TestNew_invalidWindow(t *testing.T) {
	e := newEnv(t)
	overlap := 300
	e.cfg.Chunking.Overlap = &overlap
	_, err := New(e.cfg, e.store, e.emb)
	assert.Error(t, err)
}
