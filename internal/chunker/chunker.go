// Package chunker splits document text into fixed-width overlapping windows.
package chunker

import (
	"errors"
	"fmt"
)

// DefaultMinLength is the default length (in runes) a window must exceed to be kept.
const DefaultMinLength = 50

// ErrInvalidWindow is returned by New for a size/overlap pair that cannot advance.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Chunker splits text into windows of Size runes advancing by Size-Overlap.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMinLength sets the length a window must exceed to be kept. Windows of length
// <= n are dropped.
func WithMinLength(n int) Option {
	return func(c *Chunker) { c.minLength = n }
}

// New creates a chunker with the given size and overlap, both in runes.
// Requires size > 0 and 0 <= overlap < size.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	c := &Chunker{size: size, overlap: overlap, minLength: DefaultMinLength}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stride is the distance between the starts of consecutive windows.
func (c *Chunker) Stride() int {
	return c.size - c.overlap
}

// Windows returns the number of windows cut from a text of n runes before filtering.
func (c *Chunker) Windows(n int) int {
	if n <= 0 {
		return 0
	}
	stride := c.Stride()
	return (n + stride - 1) / stride
}

// Split returns the kept windows of every text, in text order then offset order.
// Each window is clipped to the end of its text, so the trailing windows of a text may be
// shorter than the size and are dropped once they reach the minimum length.
func (c *Chunker) Split(texts []string) []string {
	var out []string
	stride := c.Stride()
	for _, text := range texts {
		runes := []rune(text)
		for start := 0; start < len(runes); start += stride {
			end := start + c.size
			if end > len(runes) {
				end = len(runes)
			}
			if end-start <= c.minLength {
				continue
			}
			out = append(out, string(runes[start:end]))
		}
	}
	return out
}
