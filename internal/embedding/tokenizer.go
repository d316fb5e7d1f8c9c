package embedding

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
)

// Tokenizer produces padded model inputs (input_ids, attention_mask, token_type_ids) of
// exactly maxTokens entries.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (fallback when no
// tokenizer.json is available).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 128
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		inputIDs[pos] = int64(h.Sum32()%29000) + 1000
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// metaspace replaces spaces in SentencePiece vocabularies.
const metaspace = "▁"

// UnigramTokenizer implements SentencePiece unigram segmentation from a tokenizer.json
// (the format shipped with XLM-R based sentence-transformers models). Segmentation picks the
// piece sequence with the highest total log-probability.
type UnigramTokenizer struct {
	pieces   map[string]unigramPiece
	maxPiece int // longest piece, in runes
	unkID    int64
	unkScore float64
	bosID    int64
	eosID    int64
	padID    int64
}

type unigramPiece struct {
	id    int64
	score float64
}

type tokenizerFile struct {
	Model struct {
		Type  string          `json:"type"`
		UnkID *int            `json:"unk_id"`
		Vocab [][]interface{} `json:"vocab"`
	} `json:"model"`
}

// LoadTokenizer reads a tokenizer.json. Only unigram models are supported; callers fall
// back to SimpleTokenizer on error.
func LoadTokenizer(path string) (*UnigramTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer: %w", err)
	}
	var f tokenizerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}
	if f.Model.Type != "Unigram" {
		return nil, fmt.Errorf("unsupported tokenizer model %q", f.Model.Type)
	}
	return newUnigramTokenizer(f.Model.Vocab, f.Model.UnkID)
}

func newUnigramTokenizer(vocab [][]interface{}, unkID *int) (*UnigramTokenizer, error) {
	t := &UnigramTokenizer{pieces: make(map[string]unigramPiece, len(vocab))}
	minScore := math.Inf(1)
	for i, entry := range vocab {
		if len(entry) != 2 {
			return nil, fmt.Errorf("vocab entry %d: expected [piece, score]", i)
		}
		piece, ok := entry[0].(string)
		if !ok {
			return nil, fmt.Errorf("vocab entry %d: piece is not a string", i)
		}
		score, ok := entry[1].(float64)
		if !ok {
			return nil, fmt.Errorf("vocab entry %d: score is not a number", i)
		}
		t.pieces[piece] = unigramPiece{id: int64(i), score: score}
		if n := len([]rune(piece)); n > t.maxPiece {
			t.maxPiece = n
		}
		if score < minScore {
			minScore = score
		}
	}
	if len(t.pieces) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	t.unkScore = minScore - 10
	t.unkID = t.idOr("<unk>", 3)
	if unkID != nil {
		t.unkID = int64(*unkID)
	}
	t.bosID = t.idOr("<s>", 0)
	t.padID = t.idOr("<pad>", 1)
	t.eosID = t.idOr("</s>", 2)
	return t, nil
}

func (t *UnigramTokenizer) idOr(piece string, def int64) int64 {
	if p, ok := t.pieces[piece]; ok {
		return p.id
	}
	return def
}

// Tokenize returns <s> pieces... </s> padded with <pad> to maxTokens.
func (t *UnigramTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.padID
	}

	ids := t.Encode(text)
	if len(ids) > maxTokens-2 {
		ids = ids[:maxTokens-2]
	}
	inputIDs[0] = t.bosID
	attentionMask[0] = 1
	for i, id := range ids {
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}
	inputIDs[len(ids)+1] = t.eosID
	attentionMask[len(ids)+1] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Encode segments text into piece IDs without special tokens.
func (t *UnigramTokenizer) Encode(text string) []int64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	runes := []rune(metaspace + strings.Join(words, metaspace))
	n := len(runes)

	best := make([]float64, n+1)
	prev := make([]int, n+1)
	ids := make([]int64, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}
	for end := 1; end <= n; end++ {
		start := end - t.maxPiece
		if start < 0 {
			start = 0
		}
		for s := start; s < end; s++ {
			if math.IsInf(best[s], -1) {
				continue
			}
			p, ok := t.pieces[string(runes[s:end])]
			if !ok {
				continue
			}
			if sc := best[s] + p.score; sc > best[end] {
				best[end], prev[end], ids[end] = sc, s, p.id
			}
		}
		// A single unknown rune keeps every position reachable.
		if math.IsInf(best[end], -1) {
			best[end], prev[end], ids[end] = best[end-1]+t.unkScore, end-1, t.unkID
		}
	}

	var out []int64
	for end := n; end > 0; end = prev[end] {
		out = append(out, ids[end])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	// Consecutive unknowns collapse into one token.
	fused := make([]int64, 0, len(out))
	for i, id := range out {
		if id == t.unkID && i > 0 && out[i-1] == t.unkID {
			continue
		}
		fused = append(fused, id)
	}
	return fused
}
