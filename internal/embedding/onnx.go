//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/ragpipe/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformers graph through ONNX Runtime and mean-pools the
// token states over the attention mask. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	name       string
	dimensions int
	maxTokens  int
	// pooled is true when the graph outputs per-token states [1, tokens, hidden].
	pooled bool

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder loads the graph at cfg.ModelPath. Input tensors are bound by name
// (input_ids, attention_mask and, when the graph declares it, token_type_ids).
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ONNX model: %w", err)
	}
	if len(outputInfo) == 0 {
		return nil, fmt.Errorf("ONNX model %s declares no outputs", cfg.ModelPath)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 128
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = &SimpleTokenizer{}
	}

	e := &ONNXEmbedder{
		tokenizer: cfg.Tokenizer,
		name:      cfg.Name,
		maxTokens: cfg.MaxTokens,
	}
	shape := ort.NewShape(1, int64(cfg.MaxTokens))
	var inputNames []string
	var inputs []ort.ArbitraryTensor
	for _, info := range inputInfo {
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			e.destroyTensors()
			return nil, fmt.Errorf("failed to create %s tensor: %w", info.Name, err)
		}
		switch info.Name {
		case "input_ids":
			e.inputIDs = t
		case "attention_mask":
			e.attentionMask = t
		case "token_type_ids":
			e.tokenTypeIDs = t
		default:
			_ = t.Destroy()
			e.destroyTensors()
			return nil, fmt.Errorf("unsupported ONNX input %q", info.Name)
		}
		inputNames = append(inputNames, info.Name)
		inputs = append(inputs, t)
	}
	if e.inputIDs == nil || e.attentionMask == nil {
		e.destroyTensors()
		return nil, fmt.Errorf("ONNX model must take input_ids and attention_mask")
	}

	out := pickOutput(outputInfo)
	dims := out.Dimensions
	var outShape ort.Shape
	switch len(dims) {
	case 3:
		e.pooled = true
		e.dimensions = hiddenSize(dims[2], cfg.Dimensions)
		outShape = ort.NewShape(1, int64(cfg.MaxTokens), int64(e.dimensions))
	case 2:
		e.dimensions = hiddenSize(dims[1], cfg.Dimensions)
		outShape = ort.NewShape(1, int64(e.dimensions))
	default:
		e.destroyTensors()
		return nil, fmt.Errorf("unexpected rank %d for ONNX output %q", len(dims), out.Name)
	}
	e.output, err = ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		inputNames,
		[]string{out.Name},
		inputs,
		[]ort.ArbitraryTensor{e.output},
		nil,
	)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return e, nil
}

func pickOutput(outputs []ort.InputOutputInfo) ort.InputOutputInfo {
	for _, o := range outputs {
		if o.Name == "last_hidden_state" || o.Name == "token_embeddings" || o.Name == "sentence_embedding" {
			return o
		}
	}
	return outputs[0]
}

func hiddenSize(declared int64, fallback int) int {
	if declared > 0 {
		return int(declared)
	}
	return fallback
}

// Embed returns the mean-pooled, L2-normalised embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("ONNX embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	if e.tokenTypeIDs != nil {
		copy(e.tokenTypeIDs.GetData(), types)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := e.output.GetData()
	emb := make([]float32, e.dimensions)
	if !e.pooled {
		copy(emb, out[:e.dimensions])
	} else {
		var n float32
		for t := 0; t < e.maxTokens; t++ {
			if mask[t] == 0 {
				continue
			}
			n++
			row := out[t*e.dimensions : (t+1)*e.dimensions]
			for d, v := range row {
				emb[d] += v
			}
		}
		if n > 0 {
			for d := range emb {
				emb[d] /= n
			}
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds texts one at a time through the single-sample session.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the configured model identifier.
func (e *ONNXEmbedder) Name() string {
	return e.name
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroyTensors()
	return err
}

func (e *ONNXEmbedder) destroyTensors() {
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
		e.attentionMask = nil
	}
	if e.tokenTypeIDs != nil {
		_ = e.tokenTypeIDs.Destroy()
		e.tokenTypeIDs = nil
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
