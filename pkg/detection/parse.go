package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model answer contains no JSON list or object
var ErrNoJSON = errors.New("no JSON found in model response")

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps only the outermost JSON list or object. Inline // comments are left
// alone since base64 mask payloads may contain "//".
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if i := strings.Index(raw, "```json"); i >= 0 {
		raw = raw[i+len("```json"):]
		if j := strings.Index(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	} else if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	start := strings.IndexAny(raw, "[{")
	if start < 0 {
		return ""
	}
	closer := "]"
	if raw[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(raw, closer)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}

// ParseModelList extracts the list of detection objects from a free-text
// model answer. Both a bare list and an object wrapping a "detections" list
// are accepted.
func ParseModelList(raw string) ([]map[string]any, error) {
	cleaned := sanitizeModelJSON(raw)
	if cleaned == "" {
		return nil, ErrNoJSON
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parse model JSON: %w", err)
	}

	switch v := parsed.(type) {
	case []any:
		return toObjects(v)
	case map[string]any:
		if list, ok := v["detections"].([]any); ok {
			return toObjects(list)
		}
		return nil, fmt.Errorf("parse model JSON: object without detections list")
	}
	return nil, ErrNoJSON
}

func toObjects(list []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse model JSON: entry %d is %T, not an object", i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}
