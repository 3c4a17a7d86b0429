package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/becomeliminal/nim-memory/memory"
)

const episodeColumns = `id, user_id, character_id, event_type, summary, key_dialogue, emotion_state, importance, embedding, strength, recall_count, last_recalled_ts, created_ts`

// AppendEpisode inserts an episode. A nil embedding is stored as NULL.
func (s *Store) AppendEpisode(ctx context.Context, create *memory.Episode) (*memory.Episode, error) {
	keyDialogue, err := encodeList(create.KeyDialogue)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode key_dialogue")
	}
	embedding, err := encodeVector(create.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode embedding")
	}
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now()
	}
	if create.Importance == 0 {
		create.Importance = memory.DefaultImportance
	}
	if create.Strength == 0 {
		create.Strength = memory.DefaultStrength
	}

	stmt := `INSERT INTO episodic_memory (user_id, character_id, event_type, summary, key_dialogue, emotion_state, importance, embedding, strength, created_ts)
		VALUES (` + placeholders(10) + `)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.CharacterID,
		create.EventType,
		create.Summary,
		keyDialogue,
		create.EmotionState,
		create.Importance,
		embedding,
		create.Strength,
		create.CreatedAt.Unix(),
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create episodic_memory")
	}
	return create, nil
}

// TouchRecalled applies recall reinforcement to every id in one statement.
func (s *Store) TouchRecalled(ctx context.Context, ids []int64, recall memory.Recall) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{recall.At.Unix(), recall.Boost, recall.MaxStrength}
	for _, id := range ids {
		args = append(args, id)
	}
	stmt := `UPDATE episodic_memory SET
			recall_count = recall_count + 1,
			last_recalled_ts = ?,
			strength = MIN(strength + ?, ?)
		WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to touch episodic_memory")
	}
	return nil
}

// RecentEpisodes returns the newest episodes first.
func (s *Store) RecentEpisodes(ctx context.Context, userID, characterID string, limit int) ([]*memory.Episode, error) {
	return s.ListEpisodes(ctx, &memory.FindEpisode{
		UserID:      userID,
		CharacterID: characterID,
		Limit:       limit,
	})
}

// ListEpisodes returns episodes matching find, newest first.
func (s *Store) ListEpisodes(ctx context.Context, find *memory.FindEpisode) ([]*memory.Episode, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != "" {
		where, args = append(where, "user_id = ?"), append(args, find.UserID)
	}
	if find.CharacterID != "" {
		where, args = append(where, "character_id = ?"), append(args, find.CharacterID)
	}
	if len(find.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(find.IDs))+")")
		for _, id := range find.IDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + episodeColumns + ` FROM episodic_memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, find.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list episodic_memory")
	}
	defer rows.Close()

	list := make([]*memory.Episode, 0)
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan episodic_memory")
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate episodic_memory")
	}
	return list, nil
}

// SimilarEpisodes scores every embedded episode of the pair in Go.
func (s *Store) SimilarEpisodes(ctx context.Context, q *memory.VectorQuery) ([]*memory.ScoredEpisode, error) {
	if q == nil || len(q.Vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}

	query := `SELECT ` + episodeColumns + ` FROM episodic_memory
		WHERE user_id = ? AND character_id = ? AND embedding IS NOT NULL`
	rows, err := s.db.QueryContext(ctx, query, q.UserID, q.CharacterID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query episodic_memory")
	}
	defer rows.Close()

	var results []*memory.ScoredEpisode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan episodic_memory")
		}
		if len(e.Embedding) == 0 {
			continue
		}
		sim := memory.CosineSimilarity(q.Vector, e.Embedding)
		if sim <= q.MinSimilarity {
			continue
		}
		results = append(results, &memory.ScoredEpisode{Episode: e, Similarity: sim, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate episodic_memory")
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// ClearHistory deletes every episode of the pair.
func (s *Store) ClearHistory(ctx context.Context, userID, characterID string) error {
	stmt := `DELETE FROM episodic_memory WHERE user_id = ? AND character_id = ?`
	if _, err := s.db.ExecContext(ctx, stmt, userID, characterID); err != nil {
		return errors.Wrap(err, "failed to delete episodic_memory")
	}
	return nil
}

func scanEpisode(rows *sql.Rows) (*memory.Episode, error) {
	var (
		e              memory.Episode
		keyDialogue    string
		embedding      sql.NullString
		lastRecalledTs sql.NullInt64
		createdTs      int64
	)
	if err := rows.Scan(
		&e.ID,
		&e.UserID,
		&e.CharacterID,
		&e.EventType,
		&e.Summary,
		&keyDialogue,
		&e.EmotionState,
		&e.Importance,
		&embedding,
		&e.Strength,
		&e.RecallCount,
		&lastRecalledTs,
		&createdTs,
	); err != nil {
		return nil, err
	}
	e.KeyDialogue = decodeList(keyDialogue)
	if embedding.Valid {
		e.Embedding = decodeVector(embedding.String)
	}
	if lastRecalledTs.Valid {
		t := time.Unix(lastRecalledTs.Int64, 0)
		e.LastRecalled = &t
	}
	e.CreatedAt = time.Unix(createdTs, 0)
	return &e, nil
}

func encodeVector(vec []float32) (sql.NullString, error) {
	if len(vec) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeVector(raw string) []float32 {
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}
