package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/becomeliminal/nim-memory/memory"
)

const episodeColumns = `id, user_id, character_id, event_type, summary, key_dialogue, emotion_state, importance, embedding::TEXT, strength, recall_count, last_recalled_ts, created_ts`

// AppendEpisode inserts an episode. A nil embedding is stored as NULL.
func (s *Store) AppendEpisode(ctx context.Context, create *memory.Episode) (*memory.Episode, error) {
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now()
	}
	if create.Importance == 0 {
		create.Importance = memory.DefaultImportance
	}
	if create.Strength == 0 {
		create.Strength = memory.DefaultStrength
	}

	embedding := s.vectorParam(create)

	stmt := `INSERT INTO episodic_memory (user_id, character_id, event_type, summary, key_dialogue, emotion_state, importance, embedding, strength, created_ts)
		VALUES (` + placeholders(10) + `)
		RETURNING id`
	if err := s.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.CharacterID,
		create.EventType,
		create.Summary,
		pq.Array(nonNil(create.KeyDialogue)),
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
	stmt := `UPDATE episodic_memory SET
			recall_count = recall_count + 1,
			last_recalled_ts = $1,
			strength = LEAST(strength + $2, $3)
		WHERE id = ANY($4)`
	if _, err := s.db.ExecContext(ctx, stmt, recall.At.Unix(), recall.Boost, recall.MaxStrength, pq.Array(ids)); err != nil {
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
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, find.UserID)
	}
	if find.CharacterID != "" {
		where, args = append(where, "character_id = "+placeholder(len(args)+1)), append(args, find.CharacterID)
	}
	if len(find.IDs) > 0 {
		where, args = append(where, "id = ANY("+placeholder(len(args)+1)+")"), append(args, pq.Array(find.IDs))
	}

	query := `SELECT ` + episodeColumns + ` FROM episodic_memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
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

// SimilarEpisodes ranks by cosine distance with the pgvector <=> operator.
func (s *Store) SimilarEpisodes(ctx context.Context, q *memory.VectorQuery) ([]*memory.ScoredEpisode, error) {
	if q == nil || len(q.Vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + episodeColumns + `, 1 - (embedding <=> $3::vector) AS similarity
		FROM episodic_memory
		WHERE user_id = $1 AND character_id = $2
			AND embedding IS NOT NULL
			AND 1 - (embedding <=> $3::vector) > $4
		ORDER BY embedding <=> $3::vector, created_ts DESC, id DESC
		LIMIT $5`
	rows, err := s.db.QueryContext(ctx, query, q.UserID, q.CharacterID, pgvector.NewVector(q.Vector), q.MinSimilarity, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search episodic_memory")
	}
	defer rows.Close()

	var results []*memory.ScoredEpisode
	for rows.Next() {
		var similarity float64
		e, err := scanEpisode(rows, &similarity)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan episodic_memory")
		}
		results = append(results, &memory.ScoredEpisode{Episode: e, Similarity: similarity, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate episodic_memory")
	}
	return results, nil
}

// ClearHistory deletes every episode of the pair.
func (s *Store) ClearHistory(ctx context.Context, userID, characterID string) error {
	stmt := `DELETE FROM episodic_memory WHERE user_id = $1 AND character_id = $2`
	if _, err := s.db.ExecContext(ctx, stmt, userID, characterID); err != nil {
		return errors.Wrap(err, "failed to delete episodic_memory")
	}
	return nil
}

// scanEpisode scans episodeColumns followed by any extra destinations.
// vectorParam returns the embedding column value. A vector that does not fit
// the column is dropped (stored as NULL) so the episode itself is kept.
func (s *Store) vectorParam(e *memory.Episode) any {
	if len(e.Embedding) == 0 {
		e.Embedding = nil
		return nil
	}
	if len(e.Embedding) != s.dims {
		slog.Warn("embedding does not fit the vector column, storing episode without it",
			"component", "postgres",
			"user_id", e.UserID,
			"character_id", e.CharacterID,
			"got", len(e.Embedding),
			"want", s.dims,
		)
		e.Embedding = nil
		return nil
	}
	return pgvector.NewVector(e.Embedding)
}

func scanEpisode(rows *sql.Rows, extra ...any) (*memory.Episode, error) {
	var (
		e              memory.Episode
		keyDialogue    []string
		embedding      sql.NullString
		lastRecalledTs sql.NullInt64
		createdTs      int64
	)
	dest := []any{
		&e.ID,
		&e.UserID,
		&e.CharacterID,
		&e.EventType,
		&e.Summary,
		pq.Array(&keyDialogue),
		&e.EmotionState,
		&e.Importance,
		&embedding,
		&e.Strength,
		&e.RecallCount,
		&lastRecalledTs,
		&createdTs,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	e.KeyDialogue = emptyToNil(keyDialogue)
	if embedding.Valid {
		var vector pgvector.Vector
		if err := vector.Scan(embedding.String); err != nil {
			return nil, errors.Wrap(err, "failed to parse embedding")
		}
		e.Embedding = vector.Slice()
	}
	if lastRecalledTs.Valid {
		t := time.Unix(lastRecalledTs.Int64, 0)
		e.LastRecalled = &t
	}
	e.CreatedAt = time.Unix(createdTs, 0)
	return &e, nil
}
