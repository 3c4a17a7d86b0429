package memory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
)

const (
	testUser      = "user-1"
	testCharacter = "mika"
)

// testNow is the fixed clock used by every manager in these tests.
var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestManager(t *testing.T, embedder memory.Embedder, cfg *memory.Config) (*memory.Manager, *sqlite.Store) {
	t.Helper()
	st := newTestStore(t)
	m := memory.NewManager(st, st, embedder, cfg, memory.WithClock(func() time.Time { return testNow }))
	return m, st
}

// vectorEmbedder returns fixed vectors for known texts.
type vectorEmbedder struct {
	dims    int
	vectors map[string][]float32
}

func (e *vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, errors.New("no vector for text")
}

func (e *vectorEmbedder) Dimensions() int { return e.dims }

// keywordEmbedder puts one dimension per topic keyword found in the text.
type keywordEmbedder struct {
	topics []string
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{topics: []string{"promot", "nurse", "hospital", "shift", "cat", "birthday"}}
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := make([]float32, len(e.topics))
	for i, topic := range e.topics {
		if strings.Contains(text, topic) {
			vec[i] = 1
		}
	}
	return memory.Normalize(vec), nil
}

func (e *keywordEmbedder) Dimensions() int { return len(e.topics) }

// failingEmbedder always errors.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

func (failingEmbedder) Dimensions() int { return 4 }

// scriptedCompleter answers extraction prompts by the user message they contain.
type scriptedCompleter struct {
	mu         sync.Mutex
	profile    map[string]string
	importance map[string]string
	err        error
	calls      int
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	answers := c.profile
	if strings.Contains(prompt, "important event worth remembering") {
		answers = c.importance
	}
	for message, answer := range answers {
		if strings.Contains(prompt, message) {
			return answer, nil
		}
	}
	return "{}", nil
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func ptr(s string) *string { return &s }

func episodeWith(summary string, embedding []float32, createdAt time.Time) *memory.Episode {
	e := memory.NewEpisode(testUser, testCharacter, memory.EventExperience, summary)
	e.Embedding = embedding
	e.CreatedAt = createdAt
	return e
}
