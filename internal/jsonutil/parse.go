// Package jsonutil extracts JSON values from model output that may be
// wrapped in markdown fences or surrounded by prose.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripMarkdownFences returns the body of a ```-fenced block, or text
// unchanged when it is not fenced.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	_, body, found := strings.Cut(text, "\n")
	if !found {
		return text
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

// ParseJSON decodes the first JSON object or array found in raw into T.
// Trailing prose after the value is ignored.
func ParseJSON[T any](raw string) (T, error) {
	var result T
	text := StripMarkdownFences(raw)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return result, fmt.Errorf("no JSON content found (raw length: %d)", len(raw))
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&result); err != nil {
		preview := text[start:]
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		var zero T
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
