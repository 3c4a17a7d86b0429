// Package sqlite implements the memory stores on SQLite (modernc.org/sqlite).
//
// Vectors are stored as JSON text and ranked in Go; SQLite has no vector
// type. Set-valued profile fields are JSON arrays merged inside a single
// upsert statement.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/becomeliminal/nim-memory/memory"
)

// Store implements memory.ProfileStore and memory.EpisodeStore.
type Store struct {
	db *sql.DB
}

var (
	_ memory.ProfileStore = (*Store)(nil)
	_ memory.EpisodeStore = (*Store)(nil)
)

// Open opens (or creates) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	slog.Info("memory store opened", "component", "sqlite", "path", path)
	return &Store{db: db}, nil
}

// New wraps an existing handle. The caller owns migrations and closing.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS semantic_profile (
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			display_name TEXT,
			nickname TEXT,
			birthday TEXT,
			occupation TEXT,
			location TEXT,
			likes TEXT NOT NULL DEFAULT '[]',
			dislikes TEXT NOT NULL DEFAULT '[]',
			interests TEXT NOT NULL DEFAULT '[]',
			updated_ts INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			PRIMARY KEY (user_id, character_id)
		)`,
		`CREATE TABLE IF NOT EXISTS episodic_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			summary TEXT NOT NULL,
			key_dialogue TEXT NOT NULL DEFAULT '[]',
			emotion_state TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 2,
			embedding TEXT,
			strength REAL NOT NULL DEFAULT 1.0,
			recall_count INTEGER NOT NULL DEFAULT 0,
			last_recalled_ts INTEGER,
			created_ts INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episodic_memory_key ON episodic_memory(user_id, character_id, created_ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to exec %q", stmt[:min(len(stmt), 60)])
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholders returns n "?" placeholders.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) []string {
	var values []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
