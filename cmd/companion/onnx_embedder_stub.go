//go:build !onnx

package main

import (
	"errors"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

func newONNXEmbedder(config.Embedding) (memory.Embedder, error) {
	return nil, errors.New("onnx embedder not compiled in; rebuild with -tags onnx")
}
