package normalize

import (
	"fmt"
	"strings"
)

// Extractor pulls a human-readable error description out of a raw upstream
// payload. ok is false when the extractor does not apply.
type Extractor struct {
	Name    string
	Extract func(raw any) (text string, ok bool)
}

// DefaultExtractors is the priority order used for failure messages. The
// first extractor returning ok wins.
func DefaultExtractors() []Extractor {
	return []Extractor{
		{Name: "description", Extract: stringField("error_description", "description")},
		{Name: "detail", Extract: stringField("detail")},
		{Name: "message", Extract: stringField("message")},
		{Name: "errors", Extract: firstErrorMessage},
		{Name: "error", Extract: errorField},
	}
}

// Describe runs extractors in order and returns the first hit.
func Describe(extractors []Extractor, raw any) (string, bool) {
	for _, e := range extractors {
		if text, ok := e.Extract(raw); ok {
			return text, true
		}
	}
	return "", false
}

func stringField(keys ...string) func(any) (string, bool) {
	return func(raw any) (string, bool) {
		m, ok := raw.(map[string]any)
		if !ok {
			return "", false
		}
		for _, k := range keys {
			if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
		return "", false
	}
}

// firstErrorMessage handles {"errors":[{"message":"..."}]}, the shape used by
// the OAuth2-fronted APIs.
func firstErrorMessage(raw any) (string, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	list, ok := m["errors"].([]any)
	if !ok || len(list) == 0 {
		return "", false
	}
	return stringField("message")(list[0])
}

func errorField(raw any) (string, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	switch v := m["error"].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v, true
		}
	case map[string]any:
		return stringField("message", "description")(v)
	case nil:
	default:
		return fmt.Sprint(v), true
	}
	return "", false
}
