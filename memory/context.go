package memory

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	profileHeading  = "About the user:"
	relevantHeading = "Relevant memories:"
	recentHeading   = "Recently happened:"
)

// BuildContext assembles the memory block for the next reply.
//
// The block holds the profile facts plus either the episodes relevant to
// query (which are then marked recalled) or, when none clear the cutoff, the
// most recent episodes (which are not). It returns "" when there is nothing
// to add; callers should then omit the section from the prompt entirely.
//
// Read failures degrade to a smaller (possibly empty) block. The only error
// is ErrInvalidKey.
func (m *Manager) BuildContext(ctx context.Context, userID, characterID, query string) (string, error) {
	if userID == "" || characterID == "" {
		return "", ErrInvalidKey
	}
	if !m.config.Enabled {
		return "", nil
	}

	var blocks []string

	profile, err := m.profiles.GetProfile(ctx, userID, characterID)
	if err != nil {
		slog.Warn("profile read failed, continuing without profile",
			"component", "memory",
			"user_id", userID,
			"character_id", characterID,
			"error", err,
		)
	} else if block := m.formatProfile(profile); block != "" {
		blocks = append(blocks, block)
	}

	if block := m.memoryBlock(ctx, userID, characterID, query); block != "" {
		blocks = append(blocks, block)
	}

	if len(blocks) == 0 {
		return "", nil
	}
	return truncate(strings.Join(blocks, "\n\n"), m.config.MaxContextChars), nil
}

// memoryBlock renders relevant episodes, falling back to recent ones.
// Relevance first, recency second, never both.
func (m *Manager) memoryBlock(ctx context.Context, userID, characterID, query string) string {
	var hits []*ScoredEpisode
	if strings.TrimSpace(query) != "" {
		var err error
		hits, err = m.Search(ctx, userID, characterID, query, m.config.SearchK)
		if err != nil {
			slog.Warn("episodic search failed, falling back to recent",
				"component", "memory",
				"user_id", userID,
				"character_id", characterID,
				"error", err,
			)
			hits = nil
		}
	}

	if len(hits) > 0 {
		episodes := make([]*Episode, len(hits))
		ids := make([]int64, len(hits))
		for i, h := range hits {
			episodes[i] = h.Episode
			ids[i] = h.Episode.ID
		}
		if err := m.TouchRecalled(ctx, ids); err != nil {
			slog.Warn("recall bookkeeping failed",
				"component", "memory",
				"user_id", userID,
				"error", err,
			)
		}
		m.metrics.recall("relevant")
		return m.formatEpisodes(relevantHeading, episodes)
	}

	recent, err := m.episodes.RecentEpisodes(ctx, userID, characterID, m.config.RecentLimit)
	if err != nil {
		slog.Warn("recent episodes read failed",
			"component", "memory",
			"user_id", userID,
			"character_id", characterID,
			"error", err,
		)
		m.metrics.recall("empty")
		return ""
	}
	if len(recent) == 0 {
		m.metrics.recall("empty")
		return ""
	}
	m.metrics.recall("recent")
	return m.formatEpisodes(recentHeading, recent)
}

// formatProfile renders the profile facts, or "" when none are set.
func (m *Manager) formatProfile(p *Profile) string {
	if p == nil {
		return ""
	}

	var lines []string
	addScalar := func(label string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			lines = append(lines, "- "+label+": "+strings.TrimSpace(*v))
		}
	}
	addList := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		if len(values) > m.config.ProfileListLimit {
			values = values[:m.config.ProfileListLimit]
		}
		lines = append(lines, "- "+label+": "+strings.Join(values, ", "))
	}

	addScalar("name", p.DisplayName)
	addScalar("nickname", p.Nickname)
	addScalar("occupation", p.Occupation)
	addList("likes", p.Likes)
	addList("interests", p.Interests)

	if len(lines) == 0 {
		return ""
	}
	return profileHeading + "\n" + strings.Join(lines, "\n")
}

// formatEpisodes renders one bullet per episode under heading.
func (m *Manager) formatEpisodes(heading string, episodes []*Episode) string {
	if len(episodes) == 0 {
		return ""
	}

	// Split the budget between lines, keeping a readable minimum.
	perLine := m.config.MaxContextChars / (len(episodes) + 1)
	if perLine < 80 {
		perLine = 80
	}

	var b strings.Builder
	b.WriteString(heading)
	for _, e := range episodes {
		line := e.Format(perLine)
		if utf8.RuneCountInString(line) == 0 {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}
