package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/becomeliminal/nim-memory/memory"
)

const profileColumns = `user_id, character_id, display_name, nickname, birthday, occupation, location, likes, dislikes, interests, updated_ts`

// unionSQL appends the values of the array bound at param that the stored
// column does not already hold (case-insensitive), preserving order.
func unionSQL(column, param string) string {
	return column + ` = semantic_profile.` + column + ` || ARRAY(
			SELECT v FROM unnest(` + param + `::TEXT[]) WITH ORDINALITY AS t(v, n)
			WHERE lower(v) NOT IN (SELECT lower(o) FROM unnest(semantic_profile.` + column + `) AS o)
			ORDER BY n
		)`
}

// UpsertProfile merges update into the stored profile. The row lock taken by
// ON CONFLICT serializes concurrent merges of the same key.
func (s *Store) UpsertProfile(ctx context.Context, update *memory.ProfileUpdate) (*memory.Profile, error) {
	stmt := `INSERT INTO semantic_profile (` + profileColumns + `)
		VALUES (` + placeholders(11) + `)
		ON CONFLICT (user_id, character_id) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, semantic_profile.display_name),
			nickname = COALESCE(EXCLUDED.nickname, semantic_profile.nickname),
			birthday = COALESCE(EXCLUDED.birthday, semantic_profile.birthday),
			occupation = COALESCE(EXCLUDED.occupation, semantic_profile.occupation),
			location = COALESCE(EXCLUDED.location, semantic_profile.location),
			` + unionSQL("likes", placeholder(8)) + `,
			` + unionSQL("dislikes", placeholder(9)) + `,
			` + unionSQL("interests", placeholder(10)) + `,
			updated_ts = EXCLUDED.updated_ts
		RETURNING ` + profileColumns

	row := s.db.QueryRowContext(ctx, stmt,
		update.UserID,
		update.CharacterID,
		nullString(update.DisplayName),
		nullString(update.Nickname),
		nullString(update.Birthday),
		nullString(update.Occupation),
		nullString(update.Location),
		pq.Array(nonNil(update.Likes)),
		pq.Array(nonNil(update.Dislikes)),
		pq.Array(nonNil(update.Interests)),
		time.Now().Unix(),
	)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert semantic_profile")
	}
	return profile, nil
}

// GetProfile returns nil, nil when the profile does not exist.
func (s *Store) GetProfile(ctx context.Context, userID, characterID string) (*memory.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM semantic_profile WHERE user_id = $1 AND character_id = $2`
	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, userID, characterID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get semantic_profile")
	}
	return profile, nil
}

// DeleteProfile removes the profile row, if any.
func (s *Store) DeleteProfile(ctx context.Context, userID, characterID string) error {
	stmt := `DELETE FROM semantic_profile WHERE user_id = $1 AND character_id = $2`
	if _, err := s.db.ExecContext(ctx, stmt, userID, characterID); err != nil {
		return errors.Wrap(err, "failed to delete semantic_profile")
	}
	return nil
}

func scanProfile(row *sql.Row) (*memory.Profile, error) {
	var (
		p                                                     memory.Profile
		displayName, nickname, birthday, occupation, location sql.NullString
		likes, dislikes, interests                            []string
		updatedTs                                             int64
	)
	if err := row.Scan(
		&p.UserID,
		&p.CharacterID,
		&displayName,
		&nickname,
		&birthday,
		&occupation,
		&location,
		pq.Array(&likes),
		pq.Array(&dislikes),
		pq.Array(&interests),
		&updatedTs,
	); err != nil {
		return nil, err
	}
	p.DisplayName = stringPtr(displayName)
	p.Nickname = stringPtr(nickname)
	p.Birthday = stringPtr(birthday)
	p.Occupation = stringPtr(occupation)
	p.Location = stringPtr(location)
	p.Likes = emptyToNil(likes)
	p.Dislikes = emptyToNil(dislikes)
	p.Interests = emptyToNil(interests)
	p.UpdatedAt = time.Unix(updatedTs, 0)
	return &p, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
