// Package repl is the interactive question/answer loop.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ragpipe/internal/models"
	"go.uber.org/zap"
)

// Answerer answers one question using n retrieved chunks.
type Answerer interface {
	Answer(ctx context.Context, query string, n int) (*models.Answer, error)
}

// Loop reads questions line by line and prints the generated answers.
type Loop struct {
	answerer Answerer
	in       *bufio.Scanner
	out      io.Writer
	results  int
	banner   string
	logger   *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithResults sets the number of chunks retrieved per question (default 1).
func WithResults(n int) Option {
	return func(lp *Loop) { lp.results = n }
}

// WithBanner replaces the message printed before the first prompt.
func WithBanner(b string) Option {
	return func(lp *Loop) { lp.banner = b }
}

// New returns a loop reading from in and writing to out.
func New(a Answerer, in io.Reader, out io.Writer, opts ...Option) *Loop {
	lp := &Loop{
		answerer: a,
		in:       bufio.NewScanner(in),
		out:      out,
		results:  1,
		banner:   "Ready for questions. Type 'exit' or 'quit' to stop.",
		logger:   zap.NewNop(),
	}
	lp.in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// IsExit reports whether line is an exit command (case-insensitive, surrounding space ignored).
func IsExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Run prompts until exit/quit, end of input, or ctx cancellation. A failed question is
// reported and the loop continues. Each question is answered independently. Cancellation
// is honoured while waiting at the prompt.
func (lp *Loop) Run(ctx context.Context) error {
	if lp.banner != "" {
		fmt.Fprintln(lp.out, lp.banner)
	}
	lines, readErr, stop := lp.readLines()
	defer close(stop)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(lp.out, "\nQuery: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(lp.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(lp.out)
				if err := *readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if IsExit(line) {
			return nil
		}
		if line == "" {
			continue
		}

		ans, err := lp.answerer.Answer(ctx, line, lp.results)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			lp.logger.Warn("query failed", zap.String("query", line), zap.Error(err))
			fmt.Fprintf(lp.out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(lp.out, "\nResponse:\n%s\n", ans.Text)
	}
}

// readLines scans input on its own goroutine. lines is closed at end of input, after which
// *readErr holds the scanner error. Closing stop releases the goroutine once its pending line
// is consumed or dropped; a read blocked on the terminal ends with the process.
func (lp *Loop) readLines() (lines <-chan string, readErr *error, stop chan struct{}) {
	ch := make(chan string)
	stop = make(chan struct{})
	var err error
	go func() {
		defer close(ch)
		for lp.in.Scan() {
			select {
			case ch <- lp.in.Text():
			case <-stop:
				return
			}
		}
		err = lp.in.Err()
	}()
	return ch, &err, stop
}
