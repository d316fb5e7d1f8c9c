package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  path: "/var/lib/ragpipe"
  collection: "notes"
chunking:
  size: 300
  overlap: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Collection != "notes" {
		t.Errorf("collection = %q", cfg.Storage.Collection)
	}
	if cfg.Storage.DatabasePath() != "/var/lib/ragpipe/collections.db" {
		t.Errorf("database path = %q", cfg.Storage.DatabasePath())
	}
	if cfg.Chunking.Size != 300 {
		t.Errorf("chunk size = %d", cfg.Chunking.Size)
	}
	if got := cfg.Chunking.OverlapOrDefault(); got != 0 {
		t.Errorf("explicit overlap 0 should be kept, got %d", got)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data:
  directory: "../data"
storage:
  path: "./db_storage"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(filepath.Dir(dir), "data"); cfg.Data.Directory != want {
		t.Errorf("data directory = %s, want %s", cfg.Data.Directory, want)
	}
	if want := filepath.Join(dir, "db_storage"); cfg.Storage.Path != want {
		t.Errorf("storage path = %s, want %s", cfg.Storage.Path, want)
	}
	if want := filepath.Join(dir, "local_embedding_model"); cfg.Embedding.ModelDir != want {
		t.Errorf("default model dir should resolve next to the config: got %s, want %s", cfg.Embedding.ModelDir, want)
	}
	if want := filepath.Join(dir, "local_llm", "orca-mini-3b-gguf2-q4_0.gguf"); cfg.LLM.WeightsPath() != want {
		t.Errorf("weights path = %s, want %s", cfg.LLM.WeightsPath(), want)
	}
}

func TestLoad_invalidOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chunking:
  size: 100
  overlap: 100
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Data.Directory != "../data" {
		t.Errorf("data dir: got %s", cfg.Data.Directory)
	}
	if cfg.Storage.Path != "../db_storage" || cfg.Storage.Collection != "sanskrit_docs" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if cfg.Chunking.Size != 200 || cfg.Chunking.OverlapOrDefault() != 50 || cfg.Chunking.MinLengthOrDefault() != 50 {
		t.Errorf("chunking: got size=%d overlap=%d min=%d",
			cfg.Chunking.Size, cfg.Chunking.OverlapOrDefault(), cfg.Chunking.MinLengthOrDefault())
	}
	if cfg.Query.InteractiveResults != 1 || cfg.Query.DefaultResults != 3 {
		t.Errorf("query results: got interactive=%d default=%d", cfg.Query.InteractiveResults, cfg.Query.DefaultResults)
	}
	if cfg.LLM.MaxTokens != 200 {
		t.Errorf("llm max tokens: got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Query.PromptTemplate != DefaultPromptTemplate {
		t.Errorf("prompt template: got %q", cfg.Query.PromptTemplate)
	}
	if len(cfg.Data.Extensions) != 2 || cfg.Data.Extensions[0] != ".pdf" || cfg.Data.Extensions[1] != ".txt" {
		t.Errorf("extensions: got %v", cfg.Data.Extensions)
	}
	if cfg.Download.InsecureSkipVerify {
		t.Error("certificate validation must stay on unless explicitly disabled")
	}
	if len(cfg.Download.EmbeddingFiles) != len(DefaultEmbeddingFiles) {
		t.Errorf("embedding files: got %d", len(cfg.Download.EmbeddingFiles))
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("watch debounce: got %s", cfg.Watch.Debounce)
	}
}

func TestApplyDefaults_doesNotShareManifest(t *testing.T) {
	cfg := Default()
	cfg.Download.EmbeddingFiles[0] = "changed.json"
	if DefaultEmbeddingFiles[0] == "changed.json" {
		t.Error("default manifest must be copied, not aliased")
	}
}

func TestEmbeddingBaseURL(t *testing.T) {
	cfg := Default()
	want := "https://huggingface.co/sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2/resolve/main"
	if got := cfg.EmbeddingBaseURL(); got != want {
		t.Errorf("EmbeddingBaseURL() = %s, want %s", got, want)
	}
}

func TestValidate(t *testing.T) {
	t.Run("default_is_valid", func(t *testing.T) {
		if err := Default().Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
	t.Run("unknown_provider", func(t *testing.T) {
		cfg := Default()
		cfg.Embedding.Provider = "word2vec"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
	t.Run("negative_min_length", func(t *testing.T) {
		cfg := Default()
		m := -1
		cfg.Chunking.MinLength = &m
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
	t.Run("negative_overlap", func(t *testing.T) {
		cfg := Default()
		o := -1
		cfg.Chunking.Overlap = &o
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestLoad_zeroMinLengthIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "chunking:\n  size: 100\n  overlap: 0\n  min_length: 0\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.MinLengthOrDefault() != 0 {
		t.Errorf("min_length: got %d, want explicit 0", cfg.Chunking.MinLengthOrDefault())
	}
	if cfg.Chunking.OverlapOrDefault() != 0 {
		t.Errorf("overlap: got %d, want explicit 0", cfg.Chunking.OverlapOrDefault())
	}
}

func TestValidate_extensions(t *testing.T) {
	tests := []struct {
		name    string
		exts    []string
		wantErr bool
	}{
		{"defaults", []string{".pdf", ".txt"}, false},
		{"all_decoders", []string{".pdf", ".TXT", ".md", ".xlsx"}, false},
		{"unknown", []string{".pdf", ".docx"}, true},
		{"missing_dot", []string{"txt"}, true},
		{"empty", []string{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Data.Extensions = tt.exts
			err := cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Storage.Path = "/tmp/db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.Path != "/tmp/db" {
		t.Errorf("loaded storage path: got %s", loaded.Storage.Path)
	}
}
