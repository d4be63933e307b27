package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoJSONObject  = errors.New("model output contains no JSON object")
	ErrMalformedJSON = errors.New("malformed JSON in model output")
)

// ExtractFirstJSONObject pulls the first {...} object out of model output
// that may be wrapped in prose or code fences. Braces inside JSON strings
// are not counted. If the braces never balance, everything up to the last
// closing brace is tried.
func ExtractFirstJSONObject(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSONObject
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return parseObject(text[start : i+1])
			}
		}
	}

	end := strings.LastIndexByte(text, '}')
	if end <= start {
		return nil, ErrNoJSONObject
	}
	return parseObject(text[start : end+1])
}

func parseObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return out, nil
}
