package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager orchestrates memory reads and writes for a chat-handling service.
//
// It is constructed once at process start with explicit stores and an
// embedder and is safe for concurrent use. It holds no mutable state of its
// own; concurrency is delegated to the stores' atomic statements.
type Manager struct {
	profiles ProfileStore
	episodes EpisodeStore
	embedder Embedder // may be nil: episodes are stored without vectors
	config   *Config
	metrics  *Metrics
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for decay and recall bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a new Manager. A nil config uses DefaultConfig.
func NewManager(profiles ProfileStore, episodes EpisodeStore, embedder Embedder, config *Config, opts ...Option) *Manager {
	m := &Manager{
		profiles: profiles,
		episodes: episodes,
		embedder: embedder,
		config:   config.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// Profile returns the semantic profile, or nil when nothing is known yet.
func (m *Manager) Profile(ctx context.Context, userID, characterID string) (*Profile, error) {
	if userID == "" || characterID == "" {
		return nil, ErrInvalidKey
	}
	return m.profiles.GetProfile(ctx, userID, characterID)
}

// UpdateProfile merges newly observed facts into the profile.
// Empty updates are ignored and return the current profile.
func (m *Manager) UpdateProfile(ctx context.Context, update *ProfileUpdate) (*Profile, error) {
	if update == nil || update.UserID == "" || update.CharacterID == "" {
		return nil, ErrInvalidKey
	}
	update.Normalize()
	if update.IsEmpty() {
		return m.profiles.GetProfile(ctx, update.UserID, update.CharacterID)
	}
	profile, err := m.profiles.UpsertProfile(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// Remember embeds and appends an episode. The insert happens even when
// embedding fails; the episode is then only reachable through Recent.
func (m *Manager) Remember(ctx context.Context, episode *Episode) (*Episode, error) {
	if episode == nil || episode.UserID == "" || episode.CharacterID == "" {
		return nil, ErrInvalidKey
	}
	episode.applyDefaults(m.now())

	if n := len(episode.Embedding); n > 0 && m.embedder != nil && m.embedder.Dimensions() > 0 && n != m.embedder.Dimensions() {
		slog.Warn("discarding supplied embedding with wrong dimensions",
			"component", "memory",
			"user_id", episode.UserID,
			"got", n,
			"want", m.embedder.Dimensions(),
		)
		episode.Embedding = nil
	}
	if len(episode.Embedding) == 0 {
		episode.Embedding = EmbedText(ctx, m.embedder, episode.FormatForEmbedding(), m.config)
		if episode.Embedding == nil && m.embedder != nil {
			m.metrics.embedFailed()
		}
	}

	stored, err := m.episodes.AppendEpisode(ctx, episode)
	if err != nil {
		return nil, fmt.Errorf("append episode: %w", err)
	}

	slog.Info("episode stored",
		"component", "memory",
		"user_id", stored.UserID,
		"character_id", stored.CharacterID,
		"episode_id", stored.ID,
		"event_type", stored.EventType,
		"embedded", stored.Embedding != nil,
	)
	return stored, nil
}

// Recent returns the newest episodes without touching recall bookkeeping.
func (m *Manager) Recent(ctx context.Context, userID, characterID string, limit int) ([]*Episode, error) {
	if userID == "" || characterID == "" {
		return nil, ErrInvalidKey
	}
	if limit <= 0 {
		limit = m.config.RecentLimit
	}
	return m.episodes.RecentEpisodes(ctx, userID, characterID, limit)
}

// TouchRecalled records that the given episodes were surfaced by Search.
func (m *Manager) TouchRecalled(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return m.episodes.TouchRecalled(ctx, ids, Recall{
		At:          m.now(),
		Boost:       m.config.RecallBoost,
		MaxStrength: m.config.MaxStrength,
	})
}

// Forget wipes everything remembered for a (user, character) pair.
func (m *Manager) Forget(ctx context.Context, userID, characterID string) error {
	if userID == "" || characterID == "" {
		return ErrInvalidKey
	}
	if err := m.episodes.ClearHistory(ctx, userID, characterID); err != nil {
		return fmt.Errorf("clear episodes: %w", err)
	}
	if err := m.profiles.DeleteProfile(ctx, userID, characterID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	slog.Info("memory cleared",
		"component", "memory",
		"user_id", userID,
		"character_id", characterID,
	)
	return nil
}
