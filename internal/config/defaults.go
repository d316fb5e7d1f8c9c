package config

import "time"

// Embedding provider identifiers.
const (
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// DefaultPromptTemplate is the prompt sent to the model. {context} and {question} are substituted.
const DefaultPromptTemplate = "Context:\n{context}\n\nQuestion: {question}\n\nAnswer (in simple English or Sanskrit):"

// DefaultEmbeddingFiles is the sentence-transformers file manifest fetched for the embedding model.
// onnx/model.onnx is the graph executed by the ONNX embedder; the rest mirror the model repo layout.
var DefaultEmbeddingFiles = []string{
	"config.json",
	"config_sentence_transformers.json",
	"model.safetensors",
	"modules.json",
	"sentence_bert_config.json",
	"special_tokens_map.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"vocab.txt",
	"1_Pooling/config.json",
	"onnx/model.onnx",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Data.Directory == "" {
		cfg.Data.Directory = "../data"
	}
	if cfg.Data.Extensions == nil {
		cfg.Data.Extensions = []string{".pdf", ".txt"}
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "../db_storage"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "sanskrit_docs"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"
	}
	if cfg.Embedding.ModelDir == "" {
		cfg.Embedding.ModelDir = "./local_embedding_model"
	}
	if cfg.Embedding.ONNXFile == "" {
		cfg.Embedding.ONNXFile = "onnx/model.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.OllamaModel == "" {
		cfg.Embedding.OllamaModel = "nomic-embed-text"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.ModelDir == "" {
		cfg.LLM.ModelDir = "./local_llm"
	}
	if cfg.LLM.ModelFile == "" {
		cfg.LLM.ModelFile = "orca-mini-3b-gguf2-q4_0.gguf"
	}
	if cfg.LLM.ModelName == "" {
		cfg.LLM.ModelName = "orca-mini-3b-local"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 200
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 200
	}
	if cfg.Chunking.Overlap == nil {
		o := 50
		cfg.Chunking.Overlap = &o
	}
	if cfg.Chunking.MinLength == nil {
		m := 50
		cfg.Chunking.MinLength = &m
	}
	if cfg.Query.InteractiveResults == 0 {
		cfg.Query.InteractiveResults = 1
	}
	if cfg.Query.DefaultResults == 0 {
		cfg.Query.DefaultResults = 3
	}
	if cfg.Query.MaxResults == 0 {
		cfg.Query.MaxResults = 20
	}
	if cfg.Query.PromptTemplate == "" {
		cfg.Query.PromptTemplate = DefaultPromptTemplate
	}
	if cfg.Download.BaseURL == "" {
		cfg.Download.BaseURL = "https://huggingface.co/{model}/resolve/main"
	}
	if cfg.Download.EmbeddingFiles == nil {
		cfg.Download.EmbeddingFiles = append([]string(nil), DefaultEmbeddingFiles...)
	}
	if cfg.Download.LLMURL == "" {
		cfg.Download.LLMURL = "https://gpt4all.io/models/gguf/orca-mini-3b-gguf2-q4_0.gguf"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
