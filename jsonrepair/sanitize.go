// Package jsonrepair recovers JSON from model output that wraps it in prose
// or bends the syntax (unquoted keys, single quotes, trailing commas).
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	greedyArray   = regexp.MustCompile(`\[[\s\S]*\]`)
)

// Extract returns the JSON text found in input. It tries, in order: the
// trimmed input as-is, the Sanitize pipeline, and the widest [...] span of the
// sanitized text. It reports false when none of them is valid JSON.
func Extract(input string) ([]byte, bool) {
	if input == "" {
		return nil, false
	}
	trimmed := strings.TrimSpace(input)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), true
	}

	sanitized := Sanitize(trimmed)
	if json.Valid([]byte(sanitized)) {
		return []byte(sanitized), true
	}

	if m := greedyArray.FindString(sanitized); m != "" && json.Valid([]byte(m)) {
		return []byte(m), true
	}
	return nil, false
}

// Parse decodes the JSON found in input into T. The zero value and false are
// returned when no JSON can be recovered or it does not decode into T.
func Parse[T any](input string) (T, bool) {
	var out T
	raw, ok := Extract(input)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// Sanitize applies the repair steps in a fixed order:
//  1. drop everything before the first '[' or '{'
//  2. drop everything after the last ']' or '}'
//  3. quote bare object keys
//  4. turn every single quote into a double quote
//  5. remove commas directly before ']' or '}'
//
// Step 4 is not string-aware and will corrupt apostrophes inside values.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)

	start := -1
	if i := strings.IndexByte(s, '['); i >= 0 {
		start = i
	}
	if i := strings.IndexByte(s, '{'); i >= 0 && (start < 0 || i < start) {
		start = i
	}
	if start > 0 {
		s = s[start:]
	}

	end := max(strings.LastIndexByte(s, ']'), strings.LastIndexByte(s, '}'))
	if end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}

	s = unquotedKey.ReplaceAllString(s, `${1}"${2}":`)
	s = strings.ReplaceAll(s, "'", `"`)
	s = trailingComma.ReplaceAllString(s, "${1}")
	return s
}
