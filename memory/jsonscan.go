package memory

import (
	"bytes"
	"encoding/json"
)

// FirstJSONObject returns the first balanced {...} in s that decodes as a
// JSON object. Models often wrap their answer in prose or code fences; braces
// inside string literals are skipped. ok is false when nothing parses.
func FirstJSONObject(s string) (obj json.RawMessage, ok bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		end := matchBrace(s, start)
		if end < 0 {
			continue
		}
		candidate := []byte(s[start : end+1])
		if json.Valid(candidate) {
			return json.RawMessage(bytes.TrimSpace(candidate)), true
		}
	}
	return nil, false
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
