package memory

import (
	"fmt"
	"strings"
	"time"
)

// NewEpisode creates an unsaved episode with default importance and strength.
func NewEpisode(userID, characterID, eventType, summary string) *Episode {
	return &Episode{
		UserID:      userID,
		CharacterID: characterID,
		EventType:   normalizeEventType(eventType),
		Summary:     strings.TrimSpace(summary),
		Importance:  DefaultImportance,
		Strength:    DefaultStrength,
	}
}

// FormatForEmbedding returns the text embedded for an episode:
// event type, summary and key dialogue, one per line.
func (e *Episode) FormatForEmbedding() string {
	parts := make([]string, 0, 2+len(e.KeyDialogue))
	if e.EventType != "" {
		parts = append(parts, e.EventType)
	}
	if e.Summary != "" {
		parts = append(parts, e.Summary)
	}
	for _, line := range e.KeyDialogue {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "\n")
}

// Format renders the episode as a single context line.
func (e *Episode) Format(maxLen int) string {
	eventType := e.EventType
	if eventType == "" {
		eventType = EventExperience
	}
	summary := strings.Join(strings.Fields(e.Summary), " ")
	if maxLen > 0 {
		summary = truncate(summary, maxLen)
	}
	return fmt.Sprintf("[%s] %s", eventType, summary)
}

// applyDefaults fills zero fields before an insert.
func (e *Episode) applyDefaults(now time.Time) {
	e.EventType = normalizeEventType(e.EventType)
	e.Importance = clampImportance(e.Importance)
	if e.Strength <= 0 {
		e.Strength = DefaultStrength
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
}

func normalizeEventType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "_")
	if t == "" {
		return EventExperience
	}
	return t
}

func clampImportance(v int) int {
	switch {
	case v <= 0:
		return DefaultImportance
	case v > 5:
		return 5
	default:
		return v
	}
}

// NormalizeSet trims values, drops blanks and removes case-insensitive
// duplicates, keeping the first spelling seen.
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalize cleans an update in place: blank scalars become nil and set
// fields are de-duplicated.
func (u *ProfileUpdate) Normalize() {
	for _, p := range []**string{&u.DisplayName, &u.Nickname, &u.Birthday, &u.Occupation, &u.Location} {
		if *p == nil {
			continue
		}
		v := strings.TrimSpace(**p)
		if v == "" {
			*p = nil
			continue
		}
		*p = &v
	}
	u.Likes = NormalizeSet(u.Likes)
	u.Dislikes = NormalizeSet(u.Dislikes)
	u.Interests = NormalizeSet(u.Interests)
}
