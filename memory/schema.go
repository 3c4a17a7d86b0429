package memory

import "encoding/json"

// JSON Schema helpers for describing the extraction output to the model.

type schema = map[string]any

func objectSchema(properties schema, required ...string) schema {
	s := schema{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProperty(description string) schema {
	return schema{"type": "string", "description": description}
}

func integerProperty(description string, min, max int) schema {
	return schema{"type": "integer", "description": description, "minimum": min, "maximum": max}
}

func booleanProperty(description string) schema {
	return schema{"type": "boolean", "description": description}
}

func stringListProperty(description string) schema {
	return schema{
		"type":        "array",
		"description": description,
		"items":       schema{"type": "string"},
	}
}

// profileSchema describes the profile extraction answer. Every field is optional.
var profileSchema = objectSchema(schema{
	"display_name": stringProperty("The user's name, only if they stated it"),
	"nickname":     stringProperty("What the user wants to be called"),
	"birthday":     stringProperty("Birthday as stated, e.g. 'March 3' or '1998-03-03'"),
	"occupation":   stringProperty("Job or role, e.g. 'nurse'"),
	"location":     stringProperty("Where the user lives"),
	"likes":        stringListProperty("Things the user newly said they like"),
	"dislikes":     stringListProperty("Things the user newly said they dislike"),
	"interests":    stringListProperty("Hobbies or topics the user is into"),
})

// importanceSchema describes the importance classification answer.
var importanceSchema = objectSchema(schema{
	"important":     booleanProperty("True only for events worth remembering for months"),
	"event_type":    stringProperty("One of: birthday, confession, decision, experience, milestone (or a short custom label)"),
	"summary":       stringProperty("One sentence, third person, describing what happened to the user"),
	"emotion_state": stringProperty("The user's emotion, e.g. proud, anxious, happy"),
	"importance":    integerProperty("1 = minor, 2 = notable, 3 = major life event", 1, 3),
	"key_dialogue":  stringListProperty("Up to 3 short quotes from the exchange that capture the event"),
}, "important")

func renderSchema(s schema) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
