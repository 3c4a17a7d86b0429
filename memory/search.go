package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Search ranks a pair's episodes against the query text.
//
// Candidates must have cosine similarity strictly above Config.MinSimilarity;
// survivors are ranked by similarity * decay and truncated to k. A failed
// query embedding yields an empty result and no error so callers can fall
// back to Recent.
func (m *Manager) Search(ctx context.Context, userID, characterID, query string, k int) ([]*ScoredEpisode, error) {
	if userID == "" || characterID == "" {
		return nil, ErrInvalidKey
	}
	if k <= 0 {
		k = m.config.SearchK
	}
	start := time.Now()
	defer m.metrics.observeSearch(start)

	vec := EmbedText(ctx, m.embedder, query, m.config)
	if vec == nil {
		if m.embedder != nil {
			m.metrics.embedFailed()
		}
		return nil, nil
	}

	candidates, err := m.episodes.SimilarEpisodes(ctx, &VectorQuery{
		UserID:        userID,
		CharacterID:   characterID,
		Vector:        vec,
		MinSimilarity: m.config.MinSimilarity,
		Limit:         k * m.config.CandidateMultiplier,
	})
	if err != nil {
		return nil, fmt.Errorf("similar episodes: %w", err)
	}

	ranked := rankEpisodes(candidates, m.now(), m.config)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	slog.Debug("episodic search",
		"component", "memory",
		"user_id", userID,
		"character_id", characterID,
		"candidates", len(candidates),
		"returned", len(ranked),
	)
	return ranked, nil
}

// rankEpisodes drops rows at or below the cutoff or without a vector, applies
// decay and sorts by score descending. Ties go to the newer episode.
func rankEpisodes(candidates []*ScoredEpisode, now time.Time, cfg *Config) []*ScoredEpisode {
	ranked := make([]*ScoredEpisode, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.Episode == nil || len(c.Episode.Embedding) == 0 {
			continue
		}
		if c.Similarity <= cfg.MinSimilarity {
			continue
		}
		ranked = append(ranked, &ScoredEpisode{
			Episode:    c.Episode,
			Similarity: c.Similarity,
			Score:      c.Similarity * DecayFactor(c.Episode, now, cfg.HalfLife, cfg.DecayFloor),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Episode.CreatedAt.Equal(ranked[j].Episode.CreatedAt) {
			return ranked[i].Episode.CreatedAt.After(ranked[j].Episode.CreatedAt)
		}
		return ranked[i].Episode.ID > ranked[j].Episode.ID
	})
	return ranked
}
