// Package postgres implements the memory stores on PostgreSQL with the
// pgvector extension. Similarity ranking runs in the database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Import the postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/becomeliminal/nim-memory/memory"
)

// Store implements memory.ProfileStore and memory.EpisodeStore.
type Store struct {
	db   *sql.DB
	dims int
}

var (
	_ memory.ProfileStore = (*Store)(nil)
	_ memory.EpisodeStore = (*Store)(nil)
)

// Open connects to dsn. dims is the embedding dimension of the vector column.
func Open(dsn string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, errors.Errorf("invalid embedding dimensions: %d", dims)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	slog.Info("memory store opened", "component", "postgres", "dims", dims)
	return &Store{db: db, dims: dims}, nil
}

// New wraps an existing handle.
func New(db *sql.DB, dims int) *Store {
	return &Store{db: db, dims: dims}
}

// Migrate creates the extension, tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS semantic_profile (
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			display_name TEXT,
			nickname TEXT,
			birthday TEXT,
			occupation TEXT,
			location TEXT,
			likes TEXT[] NOT NULL DEFAULT '{}',
			dislikes TEXT[] NOT NULL DEFAULT '{}',
			interests TEXT[] NOT NULL DEFAULT '{}',
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			PRIMARY KEY (user_id, character_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS episodic_memory (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			summary TEXT NOT NULL,
			key_dialogue TEXT[] NOT NULL DEFAULT '{}',
			emotion_state TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 2,
			embedding vector(%d),
			strength DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			recall_count INTEGER NOT NULL DEFAULT 0,
			last_recalled_ts BIGINT,
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS idx_episodic_memory_key ON episodic_memory (user_id, character_id, created_ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_episodic_memory_embedding ON episodic_memory USING hnsw (embedding vector_cosine_ops)`,
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

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
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

func emptyToNil(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
