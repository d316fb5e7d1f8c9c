// Package downloader fetches the model artifacts the pipeline runs on: the embedding model
// files and the local LLM weights.
package downloader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Kind classifies a download failure.
type Kind int

const (
	// KindNetwork is a transport failure (DNS, TLS, connection reset).
	KindNetwork Kind = iota
	// KindStatus is a non-2xx HTTP response.
	KindStatus
	// KindIO is a local filesystem failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the failure of a single item.
type Error struct {
	Kind Kind
	URL  string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Item is one remote file and its local destination.
type Item struct {
	URL  string
	Path string
}

// Result records what happened to one item.
type Result struct {
	Item    Item
	OK      bool
	Skipped bool
	Bytes   int64
	Err     error
}

// Manifest lists the embedding model files under the embedding directory, keeping nested
// paths such as 1_Pooling/config.json, followed by the LLM weight file.
func Manifest(cfg *config.Config) []Item {
	base := strings.TrimSuffix(cfg.EmbeddingBaseURL(), "/")
	items := make([]Item, 0, len(cfg.Download.EmbeddingFiles)+1)
	for _, f := range cfg.Download.EmbeddingFiles {
		f = strings.TrimPrefix(f, "/")
		items = append(items, Item{
			URL:  base + "/" + f,
			Path: filepath.Join(cfg.Embedding.ModelDir, filepath.FromSlash(f)),
		})
	}
	if cfg.Download.LLMURL != "" {
		items = append(items, Item{URL: cfg.Download.LLMURL, Path: cfg.LLM.WeightsPath()})
	}
	return items
}

// Downloader fetches items over HTTP. No retries are attempted.
type Downloader struct {
	client   *http.Client
	timeout  time.Duration
	insecure bool
	progress io.Writer
	logger   *zap.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// WithTimeout bounds each request, body included. Zero means no timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Downloader) { d.timeout = t }
}

// WithInsecureSkipVerify disables TLS certificate validation.
func WithInsecureSkipVerify(skip bool) Option {
	return func(d *Downloader) { d.insecure = skip }
}

// WithProgress renders a progress bar per item to w. Nil disables it.
func WithProgress(w io.Writer) Option {
	return func(d *Downloader) { d.progress = w }
}

// New creates a Downloader. Certificate validation stays on unless WithInsecureSkipVerify(true)
// is given, in which case a warning is logged.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.timeout > 0 {
		d.client.Timeout = d.timeout
	}
	if d.insecure {
		tr, ok := d.client.Transport.(*http.Transport)
		if !ok || tr == nil {
			tr = http.DefaultTransport.(*http.Transport)
		}
		tr = tr.Clone()
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
		d.client.Transport = tr
		d.logger.Warn("TLS certificate validation is DISABLED for model downloads")
	}
	return d
}

// Fetch downloads one item. An existing destination is left untouched without any request.
// The body is streamed to "<path>.part" and renamed into place once complete.
func (d *Downloader) Fetch(ctx context.Context, item Item) Result {
	res := Result{Item: item}
	if _, err := os.Stat(item.Path); err == nil {
		d.logger.Debug("file exists, skipping", zap.String("path", item.Path))
		res.OK, res.Skipped = true, true
		return res
	}

	if err := os.MkdirAll(filepath.Dir(item.Path), 0755); err != nil {
		res.Err = &Error{Kind: KindIO, URL: item.URL, Path: item.Path, Err: err}
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		res.Err = &Error{Kind: KindNetwork, URL: item.URL, Path: item.Path, Err: err}
		return res
	}
	resp, err := d.client.Do(req)
	if err != nil {
		res.Err = &Error{Kind: KindNetwork, URL: item.URL, Path: item.Path, Err: err}
		return res
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = &Error{Kind: KindStatus, URL: item.URL, Path: item.Path,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
		return res
	}

	n, err := d.save(resp, item)
	res.Bytes = n
	if err != nil {
		res.Err = err
		return res
	}
	res.OK = true
	d.logger.Info("downloaded", zap.String("path", item.Path), zap.Int64("bytes", n))
	return res
}

func (d *Downloader) save(resp *http.Response, item Item) (int64, error) {
	part := item.Path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, &Error{Kind: KindIO, URL: item.URL, Path: item.Path, Err: err}
	}

	var dst io.Writer = f
	var bar *progressbar.ProgressBar
	if d.progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription(filepath.Base(item.Path)),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(d.progress) }),
		)
		dst = io.MultiWriter(f, bar)
	}

	n, copyErr := io.Copy(dst, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(part)
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return n, &Error{Kind: KindIO, URL: item.URL, Path: item.Path, Err: copyErr}
		}
		return n, &Error{Kind: KindNetwork, URL: item.URL, Path: item.Path, Err: copyErr}
	}
	if closeErr != nil {
		_ = os.Remove(part)
		return n, &Error{Kind: KindIO, URL: item.URL, Path: item.Path, Err: closeErr}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := os.Rename(part, item.Path); err != nil {
		_ = os.Remove(part)
		return n, &Error{Kind: KindIO, URL: item.URL, Path: item.Path, Err: err}
	}
	return n, nil
}

// FetchAll downloads items in order. A failed item is logged and recorded; the rest still run.
func (d *Downloader) FetchAll(ctx context.Context, items []Item) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			results = append(results, Result{Item: item, Err: &Error{Kind: KindNetwork, URL: item.URL, Path: item.Path, Err: ctx.Err()}})
			continue
		}
		res := d.Fetch(ctx, item)
		if res.Err != nil {
			d.logger.Error("download failed", zap.String("url", item.URL), zap.Error(res.Err))
		}
		results = append(results, res)
	}
	return results
}

// Summary counts downloaded, skipped and failed results.
func Summary(results []Result) (downloaded, skipped, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			downloaded++
		}
	}
	return downloaded, skipped, failed
}
