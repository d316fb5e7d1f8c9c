// Package loader reads the source documents of the data directory.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/ragpipe/internal/extract"
	"github.com/hyperjump/ragpipe/internal/models"
	"go.uber.org/zap"
)

// ErrDataDirMissing is returned with an empty Result when the data directory does not exist.
// It is not fatal: the pipeline may still answer from a previously built collection.
var ErrDataDirMissing = errors.New("data directory does not exist")

// Result is the outcome of loading a directory.
type Result struct {
	Documents []models.Document
	// Failures holds one *extract.Error per file that could not be extracted.
	Failures []*extract.Error
}

// Loader enumerates a directory and extracts the text of each accepted file.
type Loader struct {
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for per-file events.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithExtensions sets the accepted file extensions (leading dot, case-insensitive).
func WithExtensions(exts []string) Option {
	return func(ld *Loader) { ld.extensions = exts }
}

// New returns a Loader accepting .pdf and .txt files unless WithExtensions is given.
func New(opts ...Option) *Loader {
	ld := &Loader{
		extractor:  extract.NewExtractor(),
		extensions: []string{".pdf", ".txt"},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load returns one document per accepted regular file in dir, ordered by file name.
// Subdirectories are not descended into. A file that fails extraction is logged, recorded in
// Result.Failures and skipped; a file with no extractable text still yields a document.
func (ld *Loader) Load(dir string) (*Result, error) {
	res := &Result{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", ErrDataDirMissing, dir)
		}
		return res, fmt.Errorf("read data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !ld.accepts(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Follow symlinks; only regular files are documents.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		text, err := ld.extractor.Extract(path)
		if err != nil {
			var extErr *extract.Error
			if !errors.As(err, &extErr) {
				extErr = &extract.Error{Kind: extract.KindIO, Path: path, Err: err}
			}
			ld.logger.Warn("skipping document",
				zap.String("path", path),
				zap.Stringer("kind", extErr.Kind),
				zap.Error(extErr.Err))
			res.Failures = append(res.Failures, extErr)
			continue
		}
		ld.logger.Debug("document loaded", zap.String("path", path), zap.Int("chars", len([]rune(text))))
		res.Documents = append(res.Documents, models.Document{Source: path, Text: text})
	}
	return res, nil
}

func (ld *Loader) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, a := range ld.extensions {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// Texts returns the document texts in load order.
func (r *Result) Texts() []string {
	texts := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		texts[i] = d.Text
	}
	return texts
}
