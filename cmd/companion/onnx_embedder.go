//go:build onnx

package main

import (
	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func newONNXEmbedder(cfg config.Embedding) (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		LibraryPath:   cfg.ONNXLibrary,
		ModelPath:     cfg.ONNXModel,
		TokenizerPath: cfg.ONNXTokenizer,
		Dimensions:    cfg.Dimensions,
	})
}
