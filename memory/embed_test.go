package memory_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
)

// recordingEmbedder returns a vector of the configured length and records inputs.
type recordingEmbedder struct {
	dims   int
	length int
	inputs []string
}

func (e *recordingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.inputs = append(e.inputs, text)
	return make([]float32, e.length), nil
}

func (e *recordingEmbedder) Dimensions() int { return e.dims }

// slowEmbedder blocks until its context is done.
type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) Dimensions() int { return 3 }

func TestEmbedText(t *testing.T) {
	ctx := context.Background()

	t.Run("truncates by runes", func(t *testing.T) {
		e := &recordingEmbedder{dims: 3, length: 3}
		cfg := &memory.Config{MaxEmbedChars: 5}
		vec := memory.EmbedText(ctx, e, "  héllo wörld  ", cfg)
		assert.Len(t, vec, 3)
		require.Len(t, e.inputs, 1)
		assert.Equal(t, "héllo", e.inputs[0])
	})

	t.Run("blank input skips the call", func(t *testing.T) {
		e := &recordingEmbedder{dims: 3, length: 3}
		assert.Nil(t, memory.EmbedText(ctx, e, " \n\t", nil))
		assert.Empty(t, e.inputs)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		e := &recordingEmbedder{dims: 3, length: 4}
		assert.Nil(t, memory.EmbedText(ctx, e, "hello", nil))
	})

	t.Run("empty vector", func(t *testing.T) {
		e := &recordingEmbedder{dims: 0, length: 0}
		assert.Nil(t, memory.EmbedText(ctx, e, "hello", nil))
	})

	t.Run("error", func(t *testing.T) {
		assert.Nil(t, memory.EmbedText(ctx, failingEmbedder{}, "hello", nil))
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := &memory.Config{EmbedTimeout: 10 * time.Millisecond}
		assert.Nil(t, memory.EmbedText(ctx, slowEmbedder{}, "hello", cfg))
	})

	t.Run("nil embedder", func(t *testing.T) {
		assert.Nil(t, memory.EmbedText(ctx, nil, "hello", nil))
	})

	t.Run("long input is cut to the default limit", func(t *testing.T) {
		e := &recordingEmbedder{dims: 3, length: 3}
		memory.EmbedText(ctx, e, strings.Repeat("a", 5000), nil)
		require.Len(t, e.inputs, 1)
		assert.Len(t, e.inputs[0], memory.DefaultConfig().MaxEmbedChars)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, memory.CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, memory.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, memory.CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.5, memory.CosineSimilarity([]float32{1, 0, 0, 0}, []float32{1, 1, 1, 1}), 1e-9)

	assert.Zero(t, memory.CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, memory.CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, memory.CosineSimilarity(nil, nil))
}

func TestNormalize(t *testing.T) {
	vec := memory.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, memory.Normalize(zero))
}
