// Package main downloads the embedding model and LLM weights used by ragpipe.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/downloader"
	"github.com/hyperjump/ragpipe/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yaml"

func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("ragpipe-fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	quiet := fs.Bool("quiet", false, "hide progress bars")
	_ = fs.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var progress io.Writer = os.Stderr
	if *quiet {
		progress = nil
	}
	failed := fetch(ctx, cfg, logger, progress, os.Stdout)
	if failed > 0 {
		os.Exit(1)
	}
}

// fetch downloads every manifest item and prints a summary to out. It returns the
// number of failed items.
func fetch(ctx context.Context, cfg *config.Config, logger *zap.Logger, progress, out io.Writer) int {
	d := downloader.New(
		downloader.WithLogger(logger),
		downloader.WithProgress(progress),
		downloader.WithTimeout(cfg.Download.Timeout),
		downloader.WithInsecureSkipVerify(cfg.Download.InsecureSkipVerify),
	)
	items := downloader.Manifest(cfg)
	logger.Info("fetching model files",
		zap.Int("files", len(items)),
		zap.String("embedding_dir", cfg.Embedding.ModelDir),
		zap.String("llm_dir", cfg.LLM.ModelDir))

	results := d.FetchAll(ctx, items)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "failed      %s: %v\n", r.Item.Path, r.Err)
		case r.Skipped:
			fmt.Fprintf(out, "exists      %s\n", r.Item.Path)
		default:
			fmt.Fprintf(out, "downloaded  %s\n", r.Item.Path)
		}
	}
	downloaded, skipped, failed := downloader.Summary(results)
	fmt.Fprintf(out, "\n%d downloaded, %d already present, %d failed\n", downloaded, skipped, failed)
	return failed
}
