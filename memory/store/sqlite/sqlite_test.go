package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func ptr(s string) *string { return &s }

func episode(user, character, summary string, embedding []float32, createdAt time.Time) *memory.Episode {
	return &memory.Episode{
		UserID:      user,
		CharacterID: character,
		EventType:   memory.EventExperience,
		Summary:     summary,
		KeyDialogue: []string{"line one", "line two"},
		Embedding:   embedding,
		CreatedAt:   createdAt,
	}
}

func TestProfileUpsert(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	got, err := st.GetProfile(ctx, "u1", "mika")
	require.NoError(t, err)
	assert.Nil(t, got)

	p, err := st.UpsertProfile(ctx, &memory.ProfileUpdate{
		UserID:      "u1",
		CharacterID: "mika",
		DisplayName: ptr("Alex"),
		Likes:       []string{"tea", "jazz"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alex", *p.DisplayName)
	assert.Nil(t, p.Occupation)
	assert.Equal(t, []string{"tea", "jazz"}, p.Likes)
	assert.Nil(t, p.Interests)

	p, err = st.UpsertProfile(ctx, &memory.ProfileUpdate{
		UserID:      "u1",
		CharacterID: "mika",
		Occupation:  ptr("nurse"),
		Likes:       []string{"JAZZ", "rain"},
		Interests:   []string{"climbing"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alex", *p.DisplayName, "nil scalar keeps the stored value")
	assert.Equal(t, "nurse", *p.Occupation)
	assert.Equal(t, []string{"tea", "jazz", "rain"}, p.Likes)
	assert.Equal(t, []string{"climbing"}, p.Interests)

	p, err = st.UpsertProfile(ctx, &memory.ProfileUpdate{UserID: "u1", CharacterID: "mika", DisplayName: ptr("Sam")})
	require.NoError(t, err)
	assert.Equal(t, "Sam", *p.DisplayName)
	assert.Equal(t, []string{"tea", "jazz", "rain"}, p.Likes)

	got, err = st.GetProfile(ctx, "u1", "mika")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	other, err := st.GetProfile(ctx, "u1", "rei")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, st.DeleteProfile(ctx, "u1", "mika"))
	got, err = st.GetProfile(ctx, "u1", "mika")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAppendAndListEpisodes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first, err := st.AppendEpisode(ctx, episode("u1", "mika", "first", []float32{1, 0}, base))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, memory.DefaultImportance, first.Importance)
	assert.Equal(t, memory.DefaultStrength, first.Strength)

	second, err := st.AppendEpisode(ctx, episode("u1", "mika", "second", nil, base.Add(time.Hour)))
	require.NoError(t, err)
	// Same timestamp as second: the higher id wins.
	third, err := st.AppendEpisode(ctx, episode("u1", "mika", "third", []float32{0, 1}, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("u1", "rei", "elsewhere", []float32{1, 0}, base.Add(2*time.Hour)))
	require.NoError(t, err)

	recent, err := st.RecentEpisodes(ctx, "u1", "mika", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.ID, recent[0].ID)
	assert.Equal(t, second.ID, recent[1].ID)

	all, err := st.ListEpisodes(ctx, &memory.FindEpisode{UserID: "u1", CharacterID: "mika"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	last := all[2]
	assert.Equal(t, "first", last.Summary)
	assert.Equal(t, []string{"line one", "line two"}, last.KeyDialogue)
	assert.Equal(t, []float32{1, 0}, last.Embedding)
	assert.True(t, last.CreatedAt.Equal(base))
	assert.Nil(t, last.LastRecalled)
	assert.Nil(t, all[1].Embedding)

	byID, err := st.ListEpisodes(ctx, &memory.FindEpisode{IDs: []int64{first.ID, third.ID}})
	require.NoError(t, err)
	assert.Len(t, byID, 2)

	_, err = st.ListEpisodes(ctx, nil)
	assert.Error(t, err)
}

func TestTouchRecalled(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	a, err := st.AppendEpisode(ctx, episode("u1", "mika", "a", []float32{1, 0}, base))
	require.NoError(t, err)
	b, err := st.AppendEpisode(ctx, episode("u1", "mika", "b", []float32{1, 0}, base))
	require.NoError(t, err)

	recall := memory.Recall{At: base.Add(24 * time.Hour), Boost: 0.5, MaxStrength: 1.8}
	require.NoError(t, st.TouchRecalled(ctx, []int64{a.ID}, recall))
	require.NoError(t, st.TouchRecalled(ctx, []int64{a.ID}, recall))
	require.NoError(t, st.TouchRecalled(ctx, nil, recall))

	list, err := st.ListEpisodes(ctx, &memory.FindEpisode{IDs: []int64{a.ID, b.ID}})
	require.NoError(t, err)
	byID := map[int64]*memory.Episode{}
	for _, e := range list {
		byID[e.ID] = e
	}

	touched := byID[a.ID]
	assert.Equal(t, 2, touched.RecallCount)
	assert.InDelta(t, 1.8, touched.Strength, 1e-9, "strength is capped")
	require.NotNil(t, touched.LastRecalled)
	assert.True(t, touched.LastRecalled.Equal(recall.At))

	untouched := byID[b.ID]
	assert.Zero(t, untouched.RecallCount)
	assert.Nil(t, untouched.LastRecalled)
	assert.Equal(t, memory.DefaultStrength, untouched.Strength)
}

func TestSimilarEpisodes(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	near, err := st.AppendEpisode(ctx, episode("u1", "mika", "close", []float32{1, 0.1, 0, 0}, base))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("u1", "mika", "boundary", []float32{1, 1, 1, 1}, base))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("u1", "mika", "no vector", nil, base))
	require.NoError(t, err)
	_, err = st.AppendEpisode(ctx, episode("u1", "rei", "other pair", []float32{1, 0, 0, 0}, base))
	require.NoError(t, err)

	hits, err := st.SimilarEpisodes(ctx, &memory.VectorQuery{
		UserID:        "u1",
		CharacterID:   "mika",
		Vector:        []float32{1, 0, 0, 0},
		MinSimilarity: 0.5,
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1, "similarity exactly at the cutoff is excluded")
	assert.Equal(t, near.ID, hits[0].Episode.ID)
	assert.Greater(t, hits[0].Similarity, 0.99)
	assert.NotEmpty(t, hits[0].Episode.Embedding)

	hits, err = st.SimilarEpisodes(ctx, &memory.VectorQuery{
		UserID:        "u1",
		CharacterID:   "mika",
		Vector:        []float32{1, 0, 0, 0},
		MinSimilarity: 0.4,
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near.ID, hits[0].Episode.ID)

	_, err = st.SimilarEpisodes(ctx, &memory.VectorQuery{UserID: "u1", CharacterID: "mika"})
	assert.Error(t, err)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	for _, character := range []string{"mika", "mika", "rei"} {
		_, err := st.AppendEpisode(ctx, episode("u1", character, "x", nil, base))
		require.NoError(t, err)
	}
	require.NoError(t, st.ClearHistory(ctx, "u1", "mika"))

	mika, err := st.RecentEpisodes(ctx, "u1", "mika", 10)
	require.NoError(t, err)
	assert.Empty(t, mika)
	rei, err := st.RecentEpisodes(ctx, "u1", "rei", 10)
	require.NoError(t, err)
	assert.Len(t, rei, 1)
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	st, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.UpsertProfile(ctx, &memory.ProfileUpdate{UserID: "u1", CharacterID: "mika", Nickname: ptr("Lex")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = sqlite.Open(path)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx), "migrations are idempotent")

	p, err := st.GetProfile(ctx, "u1", "mika")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Lex", *p.Nickname)
}
