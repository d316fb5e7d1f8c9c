package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const testDebounce = 150 * time.Millisecond

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_burstCollapsesIntoOneChange(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w := NewWatcher(dir, []string{".txt"}, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := writeFile(filepath.Join(dir, name), "hello"); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) >= 1 })
	time.Sleep(3 * testDebounce)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected one rebuild for a burst, got %d", got)
	}
}

func TestWatcher_removalTriggersChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	var calls int32
	w := NewWatcher(dir, []string{".pdf"}, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })
}

func TestWatcher_ignoresOtherExtensionsAndSubdirectories(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w := NewWatcher(dir, []string{".txt"}, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "notes.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(sub, "deep.txt"), "not watched"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(4 * testDebounce)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected no rebuilds, got %d", got)
	}
}

func TestWatcher_changeErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w := NewWatcher(dir, nil, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("no data")
	}, WithDebounce(testDebounce))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "one.txt"), "1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })
	if err := writeFile(filepath.Join(dir, "two.txt"), "2"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 })
}

func TestWatcher_stopDropsPendingChange(t *testing.T) {
	dir := t.TempDir()
	var calls int32
	w := NewWatcher(dir, nil, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, WithDebounce(time.Second))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "a.txt"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	w.Stop()
	w.Stop()
	time.Sleep(1200 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected pending change to be dropped, got %d calls", got)
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data", "docs")
	w := NewWatcher(root, []string{".txt"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
	if w.dir != filepath.Clean(root) {
		t.Errorf("dir = %s", w.dir)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
