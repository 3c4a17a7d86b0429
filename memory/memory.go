package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidKey is returned when a user or character id is empty.
	ErrInvalidKey = errors.New("memory: user id and character id are required")

	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("memory: not found")
)

// Key identifies the memory space of one user talking to one character.
type Key struct {
	UserID      string
	CharacterID string
}

// Valid reports whether both halves of the key are set.
func (k Key) Valid() bool {
	return k.UserID != "" && k.CharacterID != ""
}

// Profile is the semantic memory of a user as seen by one character.
// Scalar fields are nil until observed. Set fields only grow.
type Profile struct {
	UserID      string
	CharacterID string

	DisplayName *string
	Nickname    *string
	Birthday    *string
	Occupation  *string
	Location    *string

	Likes     []string
	Dislikes  []string
	Interests []string

	UpdatedAt time.Time
}

// ProfileUpdate carries the fields observed in one turn.
// A nil scalar means "not observed" and never clears a stored value.
type ProfileUpdate struct {
	UserID      string
	CharacterID string

	DisplayName *string
	Nickname    *string
	Birthday    *string
	Occupation  *string
	Location    *string

	Likes     []string
	Dislikes  []string
	Interests []string
}

// IsEmpty reports whether the update carries no facts.
func (u *ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Nickname == nil && u.Birthday == nil &&
		u.Occupation == nil && u.Location == nil &&
		len(u.Likes) == 0 && len(u.Dislikes) == 0 && len(u.Interests) == 0
}

// Common event types. EventType is an open enum; models may return others.
const (
	EventBirthday   = "birthday"
	EventConfession = "confession"
	EventDecision   = "decision"
	EventExperience = "experience"
	EventMilestone  = "milestone"
)

const (
	// DefaultImportance is the importance tier of an episode when none is given.
	DefaultImportance = 2
	// DefaultStrength is the strength of a freshly stored episode.
	DefaultStrength = 1.0
)

// Episode is one remembered event. Rows are immutable except for
// Strength, RecallCount and LastRecalled.
type Episode struct {
	ID          int64
	UserID      string
	CharacterID string

	EventType    string
	Summary      string
	KeyDialogue  []string
	EmotionState string
	Importance   int

	// Embedding is nil when the embedding call failed at write time.
	Embedding []float32

	Strength     float64
	RecallCount  int
	LastRecalled *time.Time
	CreatedAt    time.Time
}

// ScoredEpisode is an episode returned by similarity search.
type ScoredEpisode struct {
	Episode *Episode
	// Similarity is the raw cosine similarity to the query.
	Similarity float64
	// Score is Similarity multiplied by the decay factor.
	Score float64
}

// VectorQuery asks a store for episodes similar to a vector.
type VectorQuery struct {
	UserID      string
	CharacterID string
	Vector      []float32
	// MinSimilarity is exclusive: only similarity > MinSimilarity matches.
	MinSimilarity float64
	// Limit caps the number of candidates returned.
	Limit int
}

// FindEpisode filters ListEpisodes.
type FindEpisode struct {
	UserID      string
	CharacterID string
	IDs         []int64
	Limit       int
}

// Recall describes a recall reinforcement applied by TouchRecalled.
type Recall struct {
	At          time.Time
	Boost       float64
	MaxStrength float64
}

// ProfileStore persists semantic profiles.
type ProfileStore interface {
	// GetProfile returns nil, nil when no profile exists.
	GetProfile(ctx context.Context, userID, characterID string) (*Profile, error)

	// UpsertProfile merges the update into the stored row atomically:
	// non-nil scalars overwrite, set fields become the de-duplicated union.
	UpsertProfile(ctx context.Context, update *ProfileUpdate) (*Profile, error)

	// DeleteProfile removes the profile of a (user, character) pair.
	DeleteProfile(ctx context.Context, userID, characterID string) error
}

// EpisodeStore persists episodic memories.
type EpisodeStore interface {
	// AppendEpisode inserts an episode and returns it with ID and defaults set.
	// A nil embedding is stored as NULL.
	AppendEpisode(ctx context.Context, episode *Episode) (*Episode, error)

	// TouchRecalled increments recall_count, sets last_recalled and boosts
	// strength for every id in one atomic statement.
	TouchRecalled(ctx context.Context, ids []int64, recall Recall) error

	// RecentEpisodes returns the newest episodes first.
	RecentEpisodes(ctx context.Context, userID, characterID string, limit int) ([]*Episode, error)

	// SimilarEpisodes returns episodes whose cosine similarity to the query
	// vector is strictly above q.MinSimilarity. Rows without an embedding
	// never match.
	SimilarEpisodes(ctx context.Context, q *VectorQuery) ([]*ScoredEpisode, error)

	// ListEpisodes returns episodes matching the filter, newest first.
	ListEpisodes(ctx context.Context, find *FindEpisode) ([]*Episode, error)

	// ClearHistory deletes every episode of a (user, character) pair.
	ClearHistory(ctx context.Context, userID, characterID string) error
}

// Embedder converts text to vector embeddings.
// Implementations: openai (API), onnx (local model), mock (testing).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Completer is the language-model completion service used for extraction.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}
