//go:build onnx

// Package onnx provides a real embedder backed by ONNX Runtime and an
// all-MiniLM-L6-v2 sentence-transformer model. Built only with the
// "onnx" tag because it needs the onnxruntime shared library and model
// files on disk.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultDimensions = 384 // all-MiniLM-L6-v2 hidden size
	maxSeqLen         = 128

	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json vocabulary.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Falls back to the
	// ONNXRUNTIME_LIB environment variable.
	LibraryPath string

	// Dimensions is the embedding vector size (default 384).
	Dimensions int
}

// Embedder generates embeddings with ONNX Runtime. Loading the session
// is expensive; create one at startup and share it.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	vocab      map[string]int
	dimensions int
}

// New loads the model and tokenizer. This can take seconds on cold
// start, which is exactly why embedding runs off the ingestion path.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = defaultDimensions
	}
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = os.Getenv("ONNXRUNTIME_LIB")
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &Embedder{
		session:    session,
		vocab:      vocab,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed tokenizes the text, runs the model, and mean-pools the last
// hidden state into a unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inputIDs := make([]int64, maxSeqLen)
	attentionMask := make([]int64, maxSeqLen)
	tokenTypeIDs := make([]int64, maxSeqLen)

	tokens := e.tokenize(text)
	if len(tokens) > maxSeqLen-2 {
		tokens = tokens[:maxSeqLen-2]
	}
	inputIDs[0] = clsToken
	attentionMask[0] = 1
	for i, tok := range tokens {
		inputIDs[i+1] = tok
		attentionMask[i+1] = 1
	}
	inputIDs[len(tokens)+1] = sepToken
	attentionMask[len(tokens)+1] = 1

	shape := ort.NewShape(1, int64(maxSeqLen))
	inputs := make([]ort.Value, 0, 3)
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			for _, t := range inputs {
				t.Destroy()
			}
			return nil, fmt.Errorf("onnx: create tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}
	defer func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}()

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}
	defer func() {
		for _, t := range outputs {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: unexpected output tensor type")
	}
	return e.pool(tensor, attentionMask)
}

// pool mean-pools [1, seq, hidden] over attended tokens, or passes a
// pre-pooled [1, hidden] output through, then normalizes.
func (e *Embedder) pool(tensor *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()
	embedding := make([]float32, e.dimensions)

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("onnx: output dimension %d, want %d", len(data), e.dimensions)
		}
		copy(embedding, data[:e.dimensions])
	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dimensions {
			return nil, fmt.Errorf("onnx: hidden size %d, want %d", hidden, e.dimensions)
		}
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			for j, v := range data[i*hidden : (i+1)*hidden] {
				embedding[j] += v
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// tokenize performs lowercased WordPiece tokenization with greedy
// longest-prefix matching.
func (e *Embedder) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := e.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		tokens = append(tokens, e.wordPiece(word)...)
	}
	return tokens
}

func (e *Embedder) wordPiece(word string) []int64 {
	var pieces []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := e.vocab[piece]; ok {
				pieces = append(pieces, int64(id))
				start = end
				matched = true
				break
			}
		}
		if !matched {
			pieces = append(pieces, unkToken)
			start++
		}
	}
	return pieces
}

func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokenizer struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizer); err != nil {
		return nil, err
	}
	if len(tokenizer.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}
	return tokenizer.Model.Vocab, nil
}

// normalize converts the vector to unit length so cosine distance is
// well-defined.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
