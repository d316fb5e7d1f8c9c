// Package main is the ragpipe CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ragpipe/internal/cli"
	"github.com/hyperjump/ragpipe/internal/config"
	"github.com/hyperjump/ragpipe/internal/embedding"
	"github.com/hyperjump/ragpipe/internal/llm"
	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/internal/pipeline"
	"github.com/hyperjump/ragpipe/internal/rag"
	"github.com/hyperjump/ragpipe/internal/repl"
	"github.com/hyperjump/ragpipe/internal/server"
	"github.com/hyperjump/ragpipe/internal/storage"
	"github.com/hyperjump/ragpipe/internal/watcher"
	"github.com/hyperjump/ragpipe/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// loadConfig loads config from path. When path is the default and no such file exists,
// the built-in defaults are used so the pipeline runs with no arguments at all.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Optional .env (e.g. OLLAMA_HOST); a missing file is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		runPipeline(os.Args[1:])
		return
	}
	command := os.Args[1]
	switch command {
	case "run":
		runPipeline(os.Args[2:])
	case "ask":
		runAsk()
	case "serve":
		runServe()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("ragpipe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup parses the common -config/-debug flags, loads config and builds the logger.
func setup(fs *flag.FlagSet, args []string, jsonLogs bool) (*config.Config, *zap.Logger) {
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	var logger *zap.Logger
	if jsonLogs && !debugMode {
		logger, err = utils.NewJSONLogger()
	} else {
		logger, err = utils.NewLogger(debugMode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if resolved == "" {
		logger.Debug("no config file, using built-in defaults")
	} else {
		logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	}
	return cfg, logger
}

// runInit writes the built-in configuration to a file so it can be edited.
func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file to write")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}
	return config.Save(path, config.Default())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runPipeline is the default command: ingest the data directory, then answer questions
// from stdin until exit/quit.
func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg, logger := setup(fs, args, false)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	prepare(ctx, components, logger)
	if err := components.attachGenerator(ctx); err != nil {
		components.Close()
		logger.Fatal("Failed to load language model", zap.Error(err))
	}

	loop := repl.New(components.Engine(), os.Stdin, os.Stdout,
		repl.WithLogger(logger),
		repl.WithResults(cfg.Query.InteractiveResults))
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("interactive loop failed", zap.Error(err))
	}
}

// prepare runs ingestion and exits the process when there is nothing to answer from.
func prepare(ctx context.Context, c *Components, logger *zap.Logger) {
	report, err := c.Pipeline.Prepare(ctx)
	if report != nil {
		cli.WriteReport(os.Stdout, report)
	}
	if err != nil {
		c.Close()
		if errors.Is(err, pipeline.ErrNoData) {
			logger.Fatal("Nothing to query: add .pdf or .txt files to the data directory",
				zap.String("data_dir", c.Config.Data.Directory), zap.Error(err))
		}
		logger.Fatal("Failed to prepare collection", zap.Error(err))
	}
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ragpipe ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question to the
// front so that flag.Parse() sees them; the flag package stops at the first non-flag.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	n := fs.Int("n", 0, "number of chunks to retrieve (0 = query.default_results)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	sources := fs.Bool("sources", false, "print the retrieved chunks below the answer")
	serverURL := fs.String("server", "", "ask a running ragpipe serve instead of loading models locally")
	fs.Usage = func() { printAskUsage(fs) }
	cfg, logger := setup(fs, argsReorder(os.Args[2:]), false)
	defer logger.Sync()

	question := buildQuery(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var ans *models.Answer
	if *serverURL != "" {
		ans = &models.Answer{}
		err = postJSON(ctx, *serverURL+"/api/v1/query", models.QueryRequest{Query: question, NResults: *n}, ans)
	} else {
		components, initErr := initializeComponents(ctx, cfg, logger)
		if initErr != nil {
			logger.Fatal("Failed to initialize components", zap.Error(initErr))
		}
		defer components.Close()
		if _, err := components.Pipeline.Prepare(ctx); err != nil {
			components.Close()
			logger.Fatal("Failed to prepare collection", zap.Error(err))
		}
		if err := components.attachGenerator(ctx); err != nil {
			components.Close()
			logger.Fatal("Failed to load language model", zap.Error(err))
		}
		ans, err = components.Engine().Answer(ctx, question, *n)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format, *sources); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	watch := fs.Bool("watch", false, "rebuild the collection when the data directory changes (overrides watch.enabled)")
	cfg, logger := setup(fs, os.Args[2:], true)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	prepare(ctx, components, logger)
	if err := components.attachGenerator(ctx); err != nil {
		components.Close()
		logger.Fatal("Failed to load language model", zap.Error(err))
	}

	p := components.Pipeline
	srv := server.NewServer(
		components.Engine(),
		&cfg.Server,
		logger,
		server.WithMaxResults(cfg.Query.MaxResults),
		server.WithStatus(func(ctx context.Context) (*models.Status, error) {
			return buildStatus(ctx, cfg, components.Storage, p.State().String(), components.GeneratorName())
		}),
		server.WithReindex(func(ctx context.Context) error {
			report, err := p.Reindex(ctx)
			if err != nil {
				return err
			}
			logger.Info("collection rebuilt",
				zap.Int("documents", report.Documents),
				zap.Int("items", report.Items),
				zap.Duration("took", report.Took))
			return nil
		}),
	)

	if cfg.Watch.Enabled || *watch {
		w := watcher.NewWatcher(cfg.Data.Directory, cfg.Data.Extensions, srv.Reindex,
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	serverURL := fs.String("server", "", "rebuild inside a running ragpipe serve instead of locally")
	cfg, logger := setup(fs, os.Args[2:], false)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	if *serverURL != "" {
		var out map[string]string
		if err := postJSON(ctx, *serverURL+"/api/v1/reindex", struct{}{}, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Collection rebuilt.")
		return
	}

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Pipeline.Reindex(ctx)
	if report != nil {
		cli.WriteReport(os.Stdout, report)
	}
	if err != nil {
		components.Close()
		if errors.Is(err, pipeline.ErrNoData) {
			logger.Fatal("Nothing to index; existing collection left unchanged",
				zap.String("data_dir", cfg.Data.Directory))
		}
		logger.Fatal("Reindex failed", zap.Error(err))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "", "query a running ragpipe serve instead of the local database")
	outputFormat := fs.String("output", "text", "output format: text or json")
	cfg, logger := setup(fs, os.Args[2:], false)
	defer logger.Sync()

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, cancel := signalContext()
	defer cancel()

	var status *models.Status
	if *serverURL != "" {
		status = &models.Status{}
		err = getJSON(ctx, *serverURL+"/api/v1/status", status)
	} else {
		var store *storage.SQLiteStorage
		store, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		status, err = buildStatus(ctx, cfg, store, "stored", cfg.LLM.ModelName)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// buildStatus reads the collection metadata and size straight from storage.
func buildStatus(ctx context.Context, cfg *config.Config, store storage.Storage, state, generator string) (*models.Status, error) {
	meta, err := store.GetCollection(ctx, cfg.Storage.Collection)
	if err != nil {
		return nil, err
	}
	items, err := store.CountItems(ctx, meta.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	dbPath := cfg.Storage.DatabasePath()
	disk, err := storage.DiskUsageBytes(storage.DatabaseFiles(dbPath)...)
	if err != nil {
		return nil, fmt.Errorf("failed to measure disk usage: %w", err)
	}
	return &models.Status{
		Collection:     *meta,
		Items:          int(items),
		State:          state,
		DatabasePath:   dbPath,
		DiskUsageBytes: disk,
		Generator:      generator,
		ChunkSize:      cfg.Chunking.Size,
		ChunkOverlap:   cfg.Chunking.OverlapOrDefault(),
	}, nil
}

func postJSON(ctx context.Context, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out interface{}) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Generator llm.Generator
	Pipeline  *pipeline.Pipeline
	ollama    *api.Client
	logger    *zap.Logger
}

// Close releases everything that was opened. Safe to call more than once.
func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
		c.Generator = nil
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
		c.Embedder = nil
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
		c.Storage = nil
	}
}

// GeneratorName reports the model answering questions.
func (c *Components) GeneratorName() string {
	if g, ok := c.Generator.(interface{ Model() string }); ok {
		return g.Model()
	}
	return c.Config.LLM.ModelName
}

// Engine wires the READY collection, the embedder and the generator.
func (c *Components) Engine() *rag.Engine {
	cfg := c.Config
	coll := c.Pipeline.Collection()
	return rag.NewEngine(coll, coll.Embedder(), c.Generator,
		rag.WithLogger(c.logger),
		rag.WithPromptTemplate(cfg.Query.PromptTemplate),
		rag.WithDefaultResults(cfg.Query.DefaultResults),
		rag.WithGenerateOptions(llm.GenerateOptions{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}))
}

// initializeComponents opens storage and the embedder and builds the pipeline. The language
// model is loaded separately, after ingestion, so a run with nothing to query never loads it.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	client, err := llm.NewClient(cfg.LLM.Host)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Config: cfg, Storage: store, ollama: client, logger: logger}

	emb, err := embedding.New(ctx, cfg.Embedding,
		embedding.WithLogger(logger),
		embedding.WithOllamaClient(client))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	p, err := pipeline.New(cfg, store, emb, pipeline.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	c.Pipeline = p
	return c, nil
}

func (c *Components) attachGenerator(ctx context.Context) error {
	gen, err := llm.NewOllamaGenerator(ctx, c.ollama, c.Config.LLM.ModelName, c.Config.LLM.WeightsPath(),
		llm.WithLogger(c.logger))
	if err != nil {
		if errors.Is(err, llm.ErrWeightsMissing) {
			return fmt.Errorf("%w (run ragpipe-fetch first)", err)
		}
		return err
	}
	c.Generator = gen
	return nil
}

func printUsage() {
	fmt.Println(`ragpipe - local retrieval-augmented question answering

Usage:
  ragpipe [flags]                 Ingest the data directory and answer questions interactively
  ragpipe ask [flags] <question>  Answer a single question
  ragpipe serve [flags]           Start the HTTP API
  ragpipe reindex [flags]         Rebuild the collection from the data directory
  ragpipe status [flags]          Show collection status
  ragpipe init [flags]            Write the default config file
  ragpipe version                 Show version
  ragpipe help                    Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, built-in defaults if absent)
  --debug            Enable debug logging

Ask Flags:
  --n int            Chunks to retrieve (default: query.default_results)
  --output string    Output format: text or json (default: text)
  --sources          Print the retrieved chunks
  --server string    Ask a running server instead of loading models locally

Serve Flags:
  --watch            Rebuild the collection when the data directory changes

Init Flags:
  --config string    File to write (default: ./config.yaml)
  --force            Overwrite an existing file

Reindex/Status Flags:
  --server string    Use a running server instead of the local database
  --output string    Output format for status: text or json (default: text)

Examples:
  ragpipe
  ragpipe ask "What is the Rigveda?"
  ragpipe ask --output json -n 5 "dharma in the Gita"
  ragpipe serve --watch
  ragpipe status --output json
  ragpipe reindex --server http://localhost:8080

Download the models first with ragpipe-fetch.`)
}
