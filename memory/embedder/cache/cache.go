// Package cache memoizes embeddings in a ristretto cache so repeated texts
// (greetings, retried turns) skip the embedding service.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultCapacity is the number of vectors kept when Capacity is zero.
const DefaultCapacity = 10_000

// Embedder wraps another memory.Embedder.
type Embedder struct {
	next      memory.Embedder
	namespace string
	cache     *ristretto.Cache
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps next. namespace separates vectors of different models sharing
// a process; capacity is the maximum number of cached vectors.
func New(next memory.Embedder, namespace string, capacity int64) (*Embedder, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        capacity * 10,
		MaxCost:            capacity,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, namespace: namespace, cache: c}, nil
}

// Embed returns the cached vector for text or asks the wrapped embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return clone(vec), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		e.cache.Set(key, clone(vec), 1)
		e.cache.Wait()
	}
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func clone(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
