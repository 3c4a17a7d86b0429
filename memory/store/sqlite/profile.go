package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/becomeliminal/nim-memory/memory"
)

const profileColumns = `user_id, character_id, display_name, nickname, birthday, occupation, location, likes, dislikes, interests, updated_ts`

// unionSQL merges the incoming JSON array (bound to the next placeholder)
// into the stored one, keeping the stored order and appending values not
// already present (case-insensitive).
func unionSQL(column string) string {
	return column + ` = (SELECT json_group_array(value) FROM (
			SELECT value FROM json_each(semantic_profile.` + column + `)
			UNION ALL
			SELECT value FROM json_each(?)
			WHERE lower(value) NOT IN (SELECT lower(value) FROM json_each(semantic_profile.` + column + `))
		))`
}

// UpsertProfile merges update into the stored profile in one statement.
func (s *Store) UpsertProfile(ctx context.Context, update *memory.ProfileUpdate) (*memory.Profile, error) {
	likes, err := encodeList(update.Likes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode likes")
	}
	dislikes, err := encodeList(update.Dislikes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode dislikes")
	}
	interests, err := encodeList(update.Interests)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode interests")
	}

	stmt := `INSERT INTO semantic_profile (` + profileColumns + `)
		VALUES (` + placeholders(11) + `)
		ON CONFLICT (user_id, character_id) DO UPDATE SET
			display_name = COALESCE(excluded.display_name, semantic_profile.display_name),
			nickname = COALESCE(excluded.nickname, semantic_profile.nickname),
			birthday = COALESCE(excluded.birthday, semantic_profile.birthday),
			occupation = COALESCE(excluded.occupation, semantic_profile.occupation),
			location = COALESCE(excluded.location, semantic_profile.location),
			` + unionSQL("likes") + `,
			` + unionSQL("dislikes") + `,
			` + unionSQL("interests") + `,
			updated_ts = excluded.updated_ts
		RETURNING ` + profileColumns

	row := s.db.QueryRowContext(ctx, stmt,
		update.UserID,
		update.CharacterID,
		nullString(update.DisplayName),
		nullString(update.Nickname),
		nullString(update.Birthday),
		nullString(update.Occupation),
		nullString(update.Location),
		likes,
		dislikes,
		interests,
		time.Now().Unix(),
		likes,
		dislikes,
		interests,
	)
	profile, err := scanProfile(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert semantic_profile")
	}
	return profile, nil
}

// GetProfile returns nil, nil when the profile does not exist.
func (s *Store) GetProfile(ctx context.Context, userID, characterID string) (*memory.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM semantic_profile WHERE user_id = ? AND character_id = ?`
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
	stmt := `DELETE FROM semantic_profile WHERE user_id = ? AND character_id = ?`
	if _, err := s.db.ExecContext(ctx, stmt, userID, characterID); err != nil {
		return errors.Wrap(err, "failed to delete semantic_profile")
	}
	return nil
}

func scanProfile(row *sql.Row) (*memory.Profile, error) {
	var (
		p                                                     memory.Profile
		displayName, nickname, birthday, occupation, location sql.NullString
		likes, dislikes, interests                            string
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
		&likes,
		&dislikes,
		&interests,
		&updatedTs,
	); err != nil {
		return nil, err
	}
	p.DisplayName = stringPtr(displayName)
	p.Nickname = stringPtr(nickname)
	p.Birthday = stringPtr(birthday)
	p.Occupation = stringPtr(occupation)
	p.Location = stringPtr(location)
	p.Likes = decodeList(likes)
	p.Dislikes = decodeList(dislikes)
	p.Interests = decodeList(interests)
	p.UpdatedAt = time.Unix(updatedTs, 0)
	return &p, nil
}
