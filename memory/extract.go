package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one prior utterance given to the profile extractor.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Turn is a finished exchange handed to the extraction pipeline.
type Turn struct {
	UserID         string
	CharacterID    string
	UserMessage    string
	AssistantReply string
	// History holds earlier messages, oldest first. Optional.
	History []Message
}

const profilePromptTemplate = `You maintain a memory of facts about a user who is chatting with a companion character.
Read the conversation and extract ONLY facts the user revealed about themselves.
Do not guess. Omit any field that was not stated. Return an empty object {} if nothing new was revealed.

Answer with a single JSON object matching this schema:
%s

%sLatest user message:
%s`

const importancePromptTemplate = `You decide whether an exchange between a user and a companion character is an important event worth remembering long-term:
birthdays, confessions, big decisions, notable experiences, milestones. Small talk is NOT important.

Answer with a single JSON object matching this schema:
%s

User: %s
Character: %s`

// buildProfilePrompt renders the profile extraction prompt.
func buildProfilePrompt(turn Turn, historyTurns int) string {
	var history strings.Builder
	msgs := turn.History
	if historyTurns >= 0 && len(msgs) > historyTurns {
		msgs = msgs[len(msgs)-historyTurns:]
	}
	if len(msgs) > 0 {
		history.WriteString("Recent conversation:\n")
		for _, m := range msgs {
			role := m.Role
			if role == "" {
				role = "user"
			}
			fmt.Fprintf(&history, "%s: %s\n", role, strings.TrimSpace(m.Content))
		}
		history.WriteString("\n")
	}
	return fmt.Sprintf(profilePromptTemplate, renderSchema(profileSchema), history.String(), strings.TrimSpace(turn.UserMessage))
}

// buildImportancePrompt renders the importance classification prompt.
func buildImportancePrompt(turn Turn) string {
	return fmt.Sprintf(importancePromptTemplate, renderSchema(importanceSchema),
		strings.TrimSpace(turn.UserMessage), strings.TrimSpace(turn.AssistantReply))
}

// ParseProfileFacts reads a profile update out of a model response.
// Unknown keys are ignored and malformed fields are skipped, so a partly
// valid answer still yields the valid part. ok is false when no JSON
// object was found or nothing usable was in it.
func ParseProfileFacts(response string) (update *ProfileUpdate, ok bool) {
	raw, found := FirstJSONObject(response)
	if !found {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}

	update = &ProfileUpdate{
		DisplayName: lenientString(fields, "display_name", "name"),
		Nickname:    lenientString(fields, "nickname"),
		Birthday:    lenientString(fields, "birthday"),
		Occupation:  lenientString(fields, "occupation", "job"),
		Location:    lenientString(fields, "location"),
		Likes:       lenientList(fields, "likes"),
		Dislikes:    lenientList(fields, "dislikes"),
		Interests:   lenientList(fields, "interests", "hobbies"),
	}
	update.Normalize()
	if update.IsEmpty() {
		return nil, false
	}
	return update, true
}

// ImportantEvent is a positive importance classification.
type ImportantEvent struct {
	EventType    string
	Summary      string
	EmotionState string
	Importance   int
	KeyDialogue  []string
}

// ParseImportance reads an importance classification out of a model
// response. Anything other than an explicit positive answer with a summary
// is treated as "not important".
func ParseImportance(response string) (event *ImportantEvent, important bool) {
	raw, found := FirstJSONObject(response)
	if !found {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	if !lenientBool(fields, "important", "is_important") {
		return nil, false
	}

	summary := lenientString(fields, "summary")
	if summary == nil {
		return nil, false
	}

	event = &ImportantEvent{
		Summary:     *summary,
		KeyDialogue: lenientList(fields, "key_dialogue"),
		Importance:  lenientInt(fields, "importance"),
	}
	if v := lenientString(fields, "event_type", "type"); v != nil {
		event.EventType = *v
	}
	if v := lenientString(fields, "emotion_state", "emotion"); v != nil {
		event.EmotionState = *v
	}
	return event, true
}

// placeholders are values models emit for "unknown".
var placeholders = map[string]bool{
	"":        true,
	"null":    true,
	"none":    true,
	"unknown": true,
	"n/a":     true,
	"na":      true,
}

func isPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// lenientString returns the first key holding a non-placeholder string.
func lenientString(fields map[string]json.RawMessage, keys ...string) *string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		s = strings.TrimSpace(s)
		if isPlaceholder(s) {
			continue
		}
		return &s
	}
	return nil
}

// lenientList accepts a list of strings or a single string.
func lenientList(fields map[string]json.RawMessage, keys ...string) []string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var list []any
		if err := json.Unmarshal(raw, &list); err == nil {
			var out []string
			for _, item := range list {
				if s, ok := item.(string); ok && !isPlaceholder(s) {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && !isPlaceholder(s) {
			return []string{s}
		}
	}
	return nil
}

// lenientBool accepts true, "true" and "yes".
func lenientBool(fields map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes":
				return true
			}
			return false
		}
	}
	return false
}

// lenientInt accepts numbers and numeric strings; 0 means absent.
func lenientInt(fields map[string]json.RawMessage, key string) int {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
