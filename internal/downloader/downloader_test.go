package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileServer(t *testing.T, files map[string]string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManifest(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.ModelDir = "/models/emb"
	cfg.LLM.ModelDir = "/models/llm"

	items := Manifest(cfg)
	require.Len(t, items, len(config.DefaultEmbeddingFiles)+1)

	base := "https://huggingface.co/sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2/resolve/main"
	assert.Equal(t, Item{URL: base + "/config.json", Path: "/models/emb/config.json"}, items[0])

	var pooling Item
	for _, it := range items {
		if filepath.Base(filepath.Dir(it.Path)) == "1_Pooling" {
			pooling = it
		}
	}
	assert.Equal(t, base+"/1_Pooling/config.json", pooling.URL)
	assert.Equal(t, filepath.Join("/models/emb", "1_Pooling", "config.json"), pooling.Path)

	last := items[len(items)-1]
	assert.Equal(t, cfg.Download.LLMURL, last.URL)
	assert.Equal(t, "/models/llm/orca-mini-3b-gguf2-q4_0.gguf", last.Path)
}

func TestFetch_skipsExistingWithoutRequest(t *testing.T) {
	var hits int32
	srv := fileServer(t, map[string]string{"/a.json": "new"}, &hits)
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	res := New().Fetch(context.Background(), Item{URL: srv.URL + "/a.json", Path: path})
	assert.True(t, res.OK)
	assert.True(t, res.Skipped)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestFetch_createsNestedDirectories(t *testing.T) {
	var hits int32
	srv := fileServer(t, map[string]string{"/1_Pooling/config.json": `{"pooling":"mean"}`}, &hits)
	path := filepath.Join(t.TempDir(), "model", "1_Pooling", "config.json")

	var progress bytes.Buffer // exercises the progress bar path
	res := New(WithProgress(&progress)).Fetch(context.Background(), Item{URL: srv.URL + "/1_Pooling/config.json", Path: path})
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(18), res.Bytes)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"pooling":"mean"}`, string(data))
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err), "partial file should be renamed")
}

func TestFetch_statusError(t *testing.T) {
	var hits int32
	srv := fileServer(t, nil, &hits)
	path := filepath.Join(t.TempDir(), "missing.bin")

	res := New().Fetch(context.Background(), Item{URL: srv.URL + "/missing.bin", Path: path})
	assert.False(t, res.OK)
	var dErr *Error
	require.True(t, errors.As(res.Err, &dErr))
	assert.Equal(t, KindStatus, dErr.Kind)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no file should be left behind")
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_networkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/x"
	srv.Close()

	res := New().Fetch(context.Background(), Item{URL: url, Path: filepath.Join(t.TempDir(), "x")})
	var dErr *Error
	require.True(t, errors.As(res.Err, &dErr))
	assert.Equal(t, KindNetwork, dErr.Kind)
}

func TestFetch_TLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()
	dir := t.TempDir()

	res := New().Fetch(context.Background(), Item{URL: srv.URL + "/w", Path: filepath.Join(dir, "strict")})
	var dErr *Error
	require.True(t, errors.As(res.Err, &dErr), "self-signed certificate must be rejected by default")
	assert.Equal(t, KindNetwork, dErr.Kind)

	res = New(WithInsecureSkipVerify(true)).Fetch(context.Background(), Item{URL: srv.URL + "/w", Path: filepath.Join(dir, "insecure")})
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
}

func TestFetchAll_continuesAfterFailure(t *testing.T) {
	var hits int32
	srv := fileServer(t, map[string]string{"/a": "A", "/c": "C"}, &hits)
	dir := t.TempDir()
	items := []Item{
		{URL: srv.URL + "/a", Path: filepath.Join(dir, "a")},
		{URL: srv.URL + "/b", Path: filepath.Join(dir, "b")},
		{URL: srv.URL + "/c", Path: filepath.Join(dir, "c")},
	}

	results := New().FetchAll(context.Background(), items)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.Error(t, results[1].Err)
	assert.True(t, results[2].OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	downloaded, skipped, failed := Summary(results)
	assert.Equal(t, 2, downloaded)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, failed)

	results = New().FetchAll(context.Background(), items)
	downloaded, skipped, failed = Summary(results)
	assert.Equal(t, []int{0, 2, 1}, []int{downloaded, skipped, failed})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "status", KindStatus.String())
	assert.Equal(t, "io", KindIO.String())
}
