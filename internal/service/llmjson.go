package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedJSON     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n?```")
	lineComment    = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSON pulls the first JSON object out of a model reply: a fenced code
// block if present, otherwise the first balanced {...} span.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); strings.HasPrefix(body, "{") {
			return body
		}
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// decodeModelJSON decodes a model reply into v, first as-is and then after
// extraction and cleanup of common formatting slips.
func decodeModelJSON(text string, v any) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty model response")
	}
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	cleaned := extractJSON(text)
	cleaned = lineComment.ReplaceAllString(cleaned, "")
	cleaned = trailingCommas.ReplaceAllString(cleaned, "$1")
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("model response is not valid JSON: %w", err)
	}
	return nil
}
