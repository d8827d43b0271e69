package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// ExtractJSON pulls a JSON payload candidate out of a model response that
// may wrap structured data in prose or markdown fencing. Three tiers:
// a fenced code block, then the first balanced object or array, then the
// whole trimmed response (which may still fail to parse downstream).
func ExtractJSON(response string) string {
	if match := fencedJSONPattern.FindStringSubmatch(response); match != nil {
		return strings.TrimSpace(match[1])
	}

	firstBrace := strings.IndexByte(response, '{')
	firstBracket := strings.IndexByte(response, '[')

	start := firstBrace
	if firstBracket != -1 && (firstBrace == -1 || firstBracket < firstBrace) {
		start = firstBracket
	}

	if start != -1 {
		if candidate, ok := scanBalanced(response, start); ok {
			return candidate
		}
	}

	return strings.TrimSpace(response)
}

// DecodeJSON extracts the JSON payload from response and unmarshals it into v.
func DecodeJSON(response string, v interface{}) error {
	return json.Unmarshal([]byte(ExtractJSON(response)), v)
}

// scanBalanced returns the substring from start up to the bracket matching
// the opener at start. String literals and escape sequences are honored so
// braces inside quoted values do not confuse the match.
func scanBalanced(s string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
