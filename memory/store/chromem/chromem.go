// Package chromem adds an in-process vector index (chromem-go) in front of
// an EpisodeStore. Rows stay in the wrapped store; the index only answers
// similarity queries and hydrates hits from it.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// Index wraps an EpisodeStore and serves SimilarEpisodes from chromem-go.
// Each (user, character) pair gets its own collection.
type Index struct {
	memory.EpisodeStore

	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

var _ memory.EpisodeStore = (*Index)(nil)

// New creates an index over store. An empty path keeps the index in memory;
// otherwise chromem persists it under path.
func New(store memory.EpisodeStore, path string) (*Index, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &Index{
		EpisodeStore: store,
		db:           db,
		collections:  make(map[string]*chromem.Collection),
	}, nil
}

// collectionName is unambiguous for any pair of ids.
func collectionName(userID, characterID string) string {
	return "episodes_" + strconv.Itoa(len(userID)) + "_" + userID + "_" + characterID
}

// getOrCreateCollection returns the collection for a pair, creating it on
// first use. fresh reports whether this call registered it in the process.
func (x *Index) getOrCreateCollection(userID, characterID string) (col *chromem.Collection, fresh bool, err error) {
	name := collectionName(userID, characterID)

	x.mu.RLock()
	col, exists := x.collections[name]
	x.mu.RUnlock()
	if exists {
		return col, false, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := x.collections[name]; exists {
		return col, false, nil
	}

	col, err = x.db.GetOrCreateCollection(name, map[string]string{
		"user_id":      userID,
		"character_id": characterID,
	}, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create collection: %w", err)
	}
	x.collections[name] = col
	return col, true, nil
}

// collection returns the pair's collection, catching it up with the wrapped
// store the first time the pair is seen by this process. Rows written by an
// earlier process (or before the index was enabled) become searchable that way.
func (x *Index) collection(ctx context.Context, userID, characterID string) (*chromem.Collection, error) {
	col, fresh, err := x.getOrCreateCollection(userID, characterID)
	if err != nil || !fresh {
		return col, err
	}
	if _, err := x.hydrate(ctx, col, userID, characterID); err != nil {
		// Forget the collection so the next call retries.
		x.mu.Lock()
		delete(x.collections, collectionName(userID, characterID))
		x.mu.Unlock()
		return nil, err
	}
	return col, nil
}

// hydrate adds every embedded row of the pair to col unless the counts
// already agree. Re-adding an id overwrites the document.
func (x *Index) hydrate(ctx context.Context, col *chromem.Collection, userID, characterID string) (int, error) {
	episodes, err := x.EpisodeStore.ListEpisodes(ctx, &memory.FindEpisode{
		UserID:      userID,
		CharacterID: characterID,
	})
	if err != nil {
		return 0, err
	}

	embedded := make([]*memory.Episode, 0, len(episodes))
	for _, e := range episodes {
		if len(e.Embedding) > 0 {
			embedded = append(embedded, e)
		}
	}
	if len(embedded) == col.Count() {
		return 0, nil
	}

	for _, e := range embedded {
		if err := addTo(ctx, col, e); err != nil {
			return 0, err
		}
	}
	slog.Info("index caught up with store",
		"component", "chromem",
		"user_id", userID,
		"character_id", characterID,
		"episodes", len(embedded),
	)
	return len(embedded), nil
}

// AppendEpisode stores the episode and indexes it when it has an embedding.
func (x *Index) AppendEpisode(ctx context.Context, episode *memory.Episode) (*memory.Episode, error) {
	stored, err := x.EpisodeStore.AppendEpisode(ctx, episode)
	if err != nil {
		return nil, err
	}
	if len(stored.Embedding) == 0 {
		return stored, nil
	}
	if err := x.add(ctx, stored); err != nil {
		// The row is durable; the next hydrate or Rebuild recovers the index.
		slog.Warn("failed to index episode", "component", "chromem", "episode_id", stored.ID, "error", err)
	}
	return stored, nil
}

func (x *Index) add(ctx context.Context, e *memory.Episode) error {
	col, err := x.collection(ctx, e.UserID, e.CharacterID)
	if err != nil {
		return err
	}
	return addTo(ctx, col, e)
}

func addTo(ctx context.Context, col *chromem.Collection, e *memory.Episode) error {
	doc := chromem.Document{
		ID:        strconv.FormatInt(e.ID, 10),
		Content:   e.Summary,
		Embedding: e.Embedding,
		Metadata: map[string]string{
			"event_type": e.EventType,
			"created_at": e.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// SimilarEpisodes queries the collection and hydrates hits from the wrapped store.
func (x *Index) SimilarEpisodes(ctx context.Context, q *memory.VectorQuery) ([]*memory.ScoredEpisode, error) {
	col, err := x.collection(ctx, q.UserID, q.CharacterID)
	if err != nil {
		return nil, err
	}

	// chromem-go requires 0 < nResults <= collection size.
	n := min(q.Limit, col.Count())
	if q.Limit <= 0 {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	similarity := make(map[int64]float64, len(results))
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if float64(r.Similarity) <= q.MinSimilarity {
			continue
		}
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		similarity[id] = float64(r.Similarity)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	episodes, err := x.EpisodeStore.ListEpisodes(ctx, &memory.FindEpisode{
		UserID:      q.UserID,
		CharacterID: q.CharacterID,
		IDs:         ids,
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*memory.Episode, len(episodes))
	for _, e := range episodes {
		byID[e.ID] = e
	}

	// Keep chromem's ranking; drop ids the store no longer has.
	scored := make([]*memory.ScoredEpisode, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		sim := similarity[id]
		scored = append(scored, &memory.ScoredEpisode{Episode: e, Similarity: sim, Score: sim})
	}
	return scored, nil
}

// ClearHistory deletes the rows and drops the pair's collection.
func (x *Index) ClearHistory(ctx context.Context, userID, characterID string) error {
	if err := x.EpisodeStore.ClearHistory(ctx, userID, characterID); err != nil {
		return err
	}
	return x.drop(userID, characterID)
}

func (x *Index) drop(userID, characterID string) error {
	name := collectionName(userID, characterID)

	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.collections, name)
	if err := x.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// Rebuild re-indexes every embedded episode of a pair from the wrapped store.
func (x *Index) Rebuild(ctx context.Context, userID, characterID string) (int, error) {
	if err := x.drop(userID, characterID); err != nil {
		return 0, err
	}
	col, _, err := x.getOrCreateCollection(userID, characterID)
	if err != nil {
		return 0, err
	}
	n, err := x.hydrate(ctx, col, userID, characterID)
	if err != nil {
		return 0, err
	}
	slog.Info("index rebuilt", "component", "chromem", "user_id", userID, "character_id", characterID, "episodes", n)
	return n, nil
}
