//go:build onnx

// Package onnx runs a local sentence-embedding model (all-MiniLM-L6-v2 and
// friends) through ONNX Runtime. Build with -tags onnx.
package onnx

import (
	"context"
	"fmt"
	"log/slog"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/nim-memory/memory"
)

// Config configures the ONNX embedder.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string

	ModelPath     string
	TokenizerPath string

	// Dimensions is the hidden size (default 384).
	Dimensions int

	// MaxSeqLen is the token window (default 128).
	MaxSeqLen int
}

// Embedder implements memory.Embedder with mean pooling over the last
// hidden state.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	maxSeqLen  int
}

var _ memory.Embedder = (*Embedder)(nil)

// New loads the tokenizer and model.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSeqLen == 0 {
		cfg.MaxSeqLen = 128
	}

	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("onnx embedder loaded", "component", "onnx", "model", cfg.ModelPath, "dims", cfg.Dimensions)
	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxSeqLen:  cfg.MaxSeqLen,
	}, nil
}

// Embed converts text to a unit-length embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := e.tokenizer.Encode(text, e.maxSeqLen)
	seqLen := len(ids)
	mask := make([]int64, seqLen)
	for i := range mask {
		mask[i] = 1
	}
	typeIDs := make([]int64, seqLen)

	shape := ort.NewShape(1, int64(seqLen))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, typeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return e.pool(hidden.GetShape(), hidden.GetData())
}

// pool reduces [1, seq, hidden] by mean, or passes an already pooled [1, hidden] through.
func (e *Embedder) pool(shape ort.Shape, data []float32) ([]float32, error) {
	embedding := make([]float32, e.dimensions)
	switch len(shape) {
	case 2:
		if shape[1] != int64(e.dimensions) {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", shape[1], e.dimensions)
		}
		copy(embedding, data[:e.dimensions])
	case 3:
		seqLen, hiddenSize := int(shape[1]), int(shape[2])
		if hiddenSize != e.dimensions {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", hiddenSize, e.dimensions)
		}
		for i := 0; i < seqLen; i++ {
			row := data[i*hiddenSize : (i+1)*hiddenSize]
			for j, v := range row {
				embedding[j] += v
			}
		}
		for j := range embedding {
			embedding[j] /= float32(seqLen)
		}
	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
	return memory.Normalize(embedding), nil
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
