package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func episode(character, summary string, embedding []float32) *memory.Episode {
	e := memory.NewEpisode("u1", character, memory.EventExperience, summary)
	e.Embedding = embedding
	e.CreatedAt = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return e
}

func query(character string, limit int) *memory.VectorQuery {
	return &memory.VectorQuery{
		UserID:        "u1",
		CharacterID:   character,
		Vector:        []float32{1, 0.1, 0},
		MinSimilarity: 0.5,
		Limit:         limit,
	}
}

func seed(t *testing.T, st memory.EpisodeStore) (hit *memory.Episode) {
	t.Helper()
	ctx := context.Background()
	hit, err := st.AppendEpisode(ctx, episode("mika", "promotion", []float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("mika", "cat", []float32{0, 1, 0}))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("mika", "offline", nil))
	require.NoError(t, err)
	return hit
}

func TestIndex_SimilarEpisodes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	idx, err := chromem.New(st, "")
	require.NoError(t, err)
	hit := seed(t, idx)

	results, err := idx.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Episode.ID)
	assert.Equal(t, "promotion", results[0].Episode.Summary)
	assert.Greater(t, results[0].Similarity, 0.99)
	assert.NotEmpty(t, results[0].Episode.Embedding)

	// Rows without a vector still land in the store.
	recent, err := idx.RecentEpisodes(ctx, "u1", "mika", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	empty, err := idx.SimilarEpisodes(ctx, query("rei", 10))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIndex_ClearHistory(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	idx, err := chromem.New(st, "")
	require.NoError(t, err)
	seed(t, idx)

	require.NoError(t, idx.ClearHistory(ctx, "u1", "mika"))

	results, err := idx.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	assert.Empty(t, results)
	recent, err := st.RecentEpisodes(ctx, "u1", "mika", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

// fixedEmbedder embeds every text to the same query vector.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0.1, 0}, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }

func TestIndex_CatchesUpAfterRestart(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first, err := chromem.New(st, "")
	require.NoError(t, err)
	hit := seed(t, first)

	// A new process starts with an empty in-memory index over the same rows.
	restarted, err := chromem.New(st, "")
	require.NoError(t, err)
	results, err := restarted.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Episode.ID)

	m := memory.NewManager(st, restarted, fixedEmbedder{}, nil)
	block, err := m.BuildContext(ctx, "u1", "mika", "remember when I got promoted?")
	require.NoError(t, err)
	assert.Equal(t, "Relevant memories:\n- [experience] promotion", block)

	rows, err := st.ListEpisodes(ctx, &memory.FindEpisode{IDs: []int64{hit.ID}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].RecallCount)
}

func TestIndex_CatchesUpRowsWrittenBeforeIndex(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	hit := seed(t, st)

	idx, err := chromem.New(st, "")
	require.NoError(t, err)

	// The first write for the pair also brings the older rows in.
	_, err = idx.AppendEpisode(ctx, episode("mika", "birthday", []float32{0, 0, 1}))
	require.NoError(t, err)

	results, err := idx.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Episode.ID)
}

func TestIndex_Rebuild(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	idx, err := chromem.New(st, "")
	require.NoError(t, err)

	// The pair is caught up (empty) on first use.
	results, err := idx.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	assert.Empty(t, results)

	// Rows written behind the index's back stay invisible until Rebuild.
	hit := seed(t, st)
	results, err = idx.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	assert.Empty(t, results)

	n, err := idx.Rebuild(ctx, "u1", "mika")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err = idx.SimilarEpisodes(ctx, query("mika", 1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Episode.ID)
}

func TestIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := t.TempDir()

	idx, err := chromem.New(st, dir)
	require.NoError(t, err)
	hit := seed(t, idx)

	reopened, err := chromem.New(st, dir)
	require.NoError(t, err)
	results, err := reopened.SimilarEpisodes(ctx, query("mika", 10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Episode.ID)
}
