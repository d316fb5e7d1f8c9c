// Package config provides configuration loading and structs for ragpipe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/ragpipe/internal/extract"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Data      DataConfig      `yaml:"data"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Query     QueryConfig     `yaml:"query"`
	Download  DownloadConfig  `yaml:"download"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
}

// DataConfig holds the source document directory.
type DataConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// StorageConfig holds the persistent collection location.
type StorageConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// DatabasePath returns the SQLite file inside the storage directory.
func (s *StorageConfig) DatabasePath() string {
	return filepath.Join(s.Path, "collections.db")
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // onnx, ollama, hash
	ModelID     string `yaml:"model_id"`
	ModelDir    string `yaml:"model_dir"`
	ONNXFile    string `yaml:"onnx_file"`
	ONNXLibrary string `yaml:"onnx_library"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
	OllamaModel string `yaml:"ollama_model"`
}

// ONNXPath returns the ONNX graph path inside the model directory.
func (e *EmbeddingConfig) ONNXPath() string {
	return filepath.Join(e.ModelDir, e.ONNXFile)
}

// LLMConfig configures the text-generation provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	ModelDir    string  `yaml:"model_dir"`
	ModelFile   string  `yaml:"model_file"`
	ModelName   string  `yaml:"model_name"`
	Host        string  `yaml:"host"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// WeightsPath returns the local GGUF weight file.
func (l *LLMConfig) WeightsPath() string {
	return filepath.Join(l.ModelDir, l.ModelFile)
}

// ChunkingConfig holds the fixed-width chunking parameters, in characters.
type ChunkingConfig struct {
	Size    int  `yaml:"size"`
	Overlap *int `yaml:"overlap"`
	// MinLength is the length a window must exceed to be kept; 0 keeps every non-empty window.
	MinLength *int `yaml:"min_length"`
}

// OverlapOrDefault returns the configured overlap; defaults to 50 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return 50
}

// MinLengthOrDefault returns the configured minimum window length; defaults to 50 when unset.
func (c *ChunkingConfig) MinLengthOrDefault() int {
	if c.MinLength != nil {
		return *c.MinLength
	}
	return 50
}

// QueryConfig holds retrieval and prompt settings.
type QueryConfig struct {
	InteractiveResults int    `yaml:"interactive_results"`
	DefaultResults     int    `yaml:"default_results"`
	MaxResults         int    `yaml:"max_results"`
	PromptTemplate     string `yaml:"prompt_template"`
}

// DownloadConfig describes the model artifacts fetched by ragpipe-fetch.
type DownloadConfig struct {
	BaseURL            string        `yaml:"base_url"`
	EmbeddingFiles     []string      `yaml:"embedding_files"`
	LLMURL             string        `yaml:"llm_url"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

// EmbeddingBaseURL expands the {model} placeholder of BaseURL with the embedding model ID.
func (c *Config) EmbeddingBaseURL() string {
	return strings.ReplaceAll(c.Download.BaseURL, "{model}", c.Embedding.ModelID)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig enables rebuilding the collection when the data directory changes (serve mode only).
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// ErrInvalidConfig is wrapped by Validate errors.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Data.Directory = expandPath(cfg.Data.Directory, configDir)
	cfg.Storage.Path = expandPath(cfg.Storage.Path, configDir)
	cfg.Embedding.ModelDir = expandPath(cfg.Embedding.ModelDir, configDir)
	cfg.LLM.ModelDir = expandPath(cfg.LLM.ModelDir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration. Relative paths resolve against the working directory.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks settings that would make a component misbehave.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunking.size must be positive, got %d", ErrInvalidConfig, c.Chunking.Size)
	}
	if overlap := c.Chunking.OverlapOrDefault(); overlap < 0 || overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunking.overlap must be in [0, %d), got %d",
			ErrInvalidConfig, c.Chunking.Size, overlap)
	}
	if n := c.Chunking.MinLengthOrDefault(); n < 0 {
		return fmt.Errorf("%w: chunking.min_length must not be negative, got %d", ErrInvalidConfig, n)
	}
	if len(c.Data.Extensions) == 0 {
		return fmt.Errorf("%w: data.extensions must not be empty", ErrInvalidConfig)
	}
	for _, ext := range c.Data.Extensions {
		if !strings.HasPrefix(ext, ".") || !extract.Supported(ext) {
			return fmt.Errorf("%w: unsupported data.extensions entry %q", ErrInvalidConfig, ext)
		}
	}
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Storage.Collection == "" {
		return fmt.Errorf("%w: storage.collection is required", ErrInvalidConfig)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" or "../" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
