// Package extract provides text extraction from source documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies an extraction failure.
type Kind int

const (
	// KindIO means the file could not be read.
	KindIO Kind = iota
	// KindParse means the file was read but its format could not be decoded.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is returned by Extract for a single file. The file contributes no document.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnsupportedFormat is wrapped when no decoder exists for an extension.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot, any case) has a decoder.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".txt", ".md", ".xlsx":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text content.
// Failures are returned as *Error so callers can tell unreadable files from undecodable ones.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Kind: KindIO, Path: path, Err: err}
	}
	text, err := e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return "", &Error{Kind: KindParse, Path: path, Err: err}
	}
	return text, nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md":
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
