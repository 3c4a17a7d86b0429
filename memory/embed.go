package memory

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"
)

// EmbedText converts text to a vector, or returns nil on any failure.
//
// Empty input, errors, timeouts, empty vectors and vectors whose length does
// not match e.Dimensions() all yield nil. Callers store without an embedding
// (writes) or skip vector search (reads). There are no retries here.
func EmbedText(ctx context.Context, e Embedder, text string, cfg *Config) []float32 {
	if e == nil {
		return nil
	}
	cfg = cfg.withDefaults()

	text = truncateRunes(strings.TrimSpace(text), cfg.MaxEmbedChars)
	if text == "" {
		return nil
	}

	if cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.EmbedTimeout)
		defer cancel()
	}

	vec, err := e.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding failed, continuing without vector",
			"component", "memory",
			"error", err,
		)
		return nil
	}
	if len(vec) == 0 {
		slog.Warn("embedding returned an empty vector", "component", "memory")
		return nil
	}
	if dims := e.Dimensions(); dims > 0 && len(vec) != dims {
		slog.Warn("embedding dimension mismatch",
			"component", "memory",
			"got", len(vec),
			"want", dims,
		)
		return nil
	}
	return vec
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero magnitude have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns vec scaled to unit length.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
