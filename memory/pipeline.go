package memory

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pipeline extracts profile facts and important events from finished turns.
//
// Both steps are best-effort: model errors, unparseable answers and storage
// failures are logged and counted, never returned.
type Pipeline struct {
	manager   *Manager
	completer Completer
	limiter   *rate.Limiter // optional
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRateLimit caps model calls made by the pipeline.
func WithRateLimit(limiter *rate.Limiter) PipelineOption {
	return func(p *Pipeline) {
		p.limiter = limiter
	}
}

// NewPipeline creates a pipeline writing through manager.
func NewPipeline(manager *Manager, completer Completer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		manager:   manager,
		completer: completer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs profile extraction and importance detection in parallel.
func (p *Pipeline) Process(ctx context.Context, turn Turn) {
	if turn.UserID == "" || turn.CharacterID == "" || strings.TrimSpace(turn.UserMessage) == "" {
		return
	}
	var g errgroup.Group
	g.Go(func() error {
		p.ExtractProfile(ctx, turn)
		return nil
	})
	g.Go(func() error {
		p.DetectImportance(ctx, turn)
		return nil
	})
	_ = g.Wait()
}

// ExtractProfile asks the model for newly revealed facts and merges them.
// It returns the stored profile, or nil when nothing was learned.
func (p *Pipeline) ExtractProfile(ctx context.Context, turn Turn) *Profile {
	log := slog.With("component", "pipeline", "kind", "profile",
		"user_id", turn.UserID, "character_id", turn.CharacterID)

	prompt := buildProfilePrompt(turn, p.manager.config.HistoryTurns)
	response, ok := p.complete(ctx, "profile", prompt)
	if !ok {
		return nil
	}

	update, ok := ParseProfileFacts(response)
	if !ok {
		log.Debug("no profile update in response")
		p.manager.metrics.extraction("profile", "none")
		return nil
	}
	update.UserID = turn.UserID
	update.CharacterID = turn.CharacterID

	profile, err := p.manager.UpdateProfile(ctx, update)
	if err != nil {
		log.Warn("profile update failed", "error", err)
		p.manager.metrics.extraction("profile", "store_error")
		return nil
	}
	log.Debug("profile updated")
	p.manager.metrics.extraction("profile", "updated")
	return profile
}

// DetectImportance asks the model whether the exchange is worth remembering
// and stores it as an episode when it is. It returns the stored episode, or
// nil when the exchange was not important or anything failed.
func (p *Pipeline) DetectImportance(ctx context.Context, turn Turn) *Episode {
	log := slog.With("component", "pipeline", "kind", "importance",
		"user_id", turn.UserID, "character_id", turn.CharacterID)

	response, ok := p.complete(ctx, "importance", buildImportancePrompt(turn))
	if !ok {
		return nil
	}

	event, important := ParseImportance(response)
	if !important {
		p.manager.metrics.extraction("importance", "not_important")
		return nil
	}

	episode := NewEpisode(turn.UserID, turn.CharacterID, event.EventType, event.Summary)
	episode.EmotionState = strings.TrimSpace(event.EmotionState)
	episode.Importance = clampImportance(event.Importance)
	episode.KeyDialogue = event.KeyDialogue
	if len(episode.KeyDialogue) == 0 {
		episode.KeyDialogue = []string{strings.TrimSpace(turn.UserMessage)}
	}

	stored, err := p.manager.Remember(ctx, episode)
	if err != nil {
		log.Warn("episode append failed", "error", err)
		p.manager.metrics.extraction("importance", "store_error")
		return nil
	}
	p.manager.metrics.extraction("importance", "stored")
	return stored
}

// complete calls the model, honoring the rate limit. ok is false on any failure.
func (p *Pipeline) complete(ctx context.Context, kind, prompt string) (string, bool) {
	if p.completer == nil {
		return "", false
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			slog.Warn("extraction skipped by rate limit",
				"component", "pipeline", "kind", kind, "error", err)
			p.manager.metrics.extraction(kind, "skipped")
			return "", false
		}
	}
	response, err := p.completer.Complete(ctx, prompt, p.manager.config.ExtractionMaxTokens)
	if err != nil {
		slog.Warn("extraction call failed",
			"component", "pipeline", "kind", kind, "error", err)
		p.manager.metrics.extraction(kind, "model_error")
		return "", false
	}
	return response, true
}
