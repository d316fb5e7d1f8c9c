package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ragpipe/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestLoad_acceptedExtensionsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "second")
	writeFile(t, dir, "a.TXT", "first")
	writeFile(t, dir, "notes.md", "ignored by default")
	writeFile(t, dir, "image.png", "binary")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0755))

	res, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, []string{"first", "second"}, res.Texts())
	assert.Equal(t, filepath.Join(dir, "a.TXT"), res.Documents[0].Source)
	assert.Empty(t, res.Failures)
}

func TestLoad_customExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "plain")
	writeFile(t, dir, "b.md", "markdown")

	res, err := New(WithExtensions([]string{".md"})).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"markdown"}, res.Texts())
}

func TestLoad_emptyTextIsStillADocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "")

	res, err := New().Load(dir)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "", res.Documents[0].Text)
}

func TestLoad_parseFailureSkipsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.pdf", "not a pdf at all")
	writeFile(t, dir, "ok.txt", "fine")

	res, err := New().Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, res.Texts())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, extract.KindParse, res.Failures[0].Kind)
	assert.Equal(t, filepath.Join(dir, "broken.pdf"), res.Failures[0].Path)
}

func TestLoad_missingDirectory(t *testing.T) {
	res, err := New().Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataDirMissing))
	require.NotNil(t, res)
	assert.Empty(t, res.Documents)
}

func TestLoad_invalidUTF8TextIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latin1.txt", "caf\xe9 \xff\xfe text")
	writeFile(t, dir, "utf8.txt", "café text")

	res, err := New().Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"café text"}, res.Texts())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, extract.KindParse, res.Failures[0].Kind)
	assert.ErrorIs(t, res.Failures[0], extract.ErrInvalidEncoding)
}
