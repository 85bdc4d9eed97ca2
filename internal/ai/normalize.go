package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidJSON is returned when a completion holds no valid JSON object.
var ErrInvalidJSON = errors.New("completion is not valid json")

// NormalizeJSON strips code fences and any prose around the outermost JSON
// object, then validates what remains.
func NormalizeJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, ErrInvalidJSON
	}
	s = s[start : end+1]
	if !json.Valid([]byte(s)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(s), nil
}
