// Package extract turns free-form model replies into structured records.
//
// Models are asked for JSON but routinely wrap it in prose, Markdown fences
// or a worked derivation. Extract tries, in order: the whole reply, the
// greedy span from the first '{' to the last '}', and finally every balanced
// top-level object block from last to first.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResponse is returned for empty or whitespace-only replies.
	// It is kept distinct from ErrMalformedResponse so callers can substitute
	// a stage default instead of aborting.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrMalformedResponse is returned when no structured block could be
	// located or parsed.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Extract parses raw into a fresh T.
func Extract[T any](raw string) (T, error) {
	return ExtractWith[T](raw, nil)
}

// ExtractWith is Extract with an acceptance check. A candidate that decodes
// but is rejected by accept does not end the search; later fallbacks are
// still tried. If every decodable candidate is rejected, the first
// rejection is returned unwrapped. A nil accept accepts everything.
func ExtractWith[T any](raw string, accept func(T) error) (T, error) {
	var zero T

	s := strings.TrimSpace(raw)
	if s == "" {
		return zero, ErrEmptyResponse
	}

	var lastErr, rejected error
	try := func(candidate string) (T, bool) {
		v, err := decodeObject[T](candidate)
		if err != nil {
			lastErr = err
			return zero, false
		}
		if accept != nil {
			if err := accept(v); err != nil {
				if rejected == nil {
					rejected = err
				}
				return zero, false
			}
		}
		return v, true
	}

	// 1) Strict parse of the whole reply.
	if v, ok := try(s); ok {
		return v, nil
	}

	// 2) Greedy span: first '{' to last '}'.
	span, found := Span(s)
	if !found {
		if rejected != nil {
			return zero, rejected
		}
		return zero, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}
	if span != s {
		if v, ok := try(span); ok {
			return v, nil
		}
	}

	// 3) Balanced blocks, preferring the last one: replies that show their
	// working put the final answer at the end.
	blocks := Blocks(s)
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i] == span {
			continue
		}
		if v, ok := try(blocks[i]); ok {
			return v, nil
		}
	}

	if rejected != nil {
		return zero, rejected
	}
	return zero, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}

// Span returns the substring from the first '{' to the last '}' of raw.
func Span(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(raw, "}")
	if end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// Blocks returns every top-level, bracket-balanced {...} block in raw, in
// order of appearance. Braces inside JSON string literals are ignored.
// Unbalanced trailing text is dropped.
func Blocks(raw string) []string {
	var (
		blocks   []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i := 0; i < len(raw); i++ {
		c := raw[i]

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
			// Quotes only open a string literal inside a candidate block;
			// prose apostrophes and quotes are not JSON.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				blocks = append(blocks, raw[start:i+1])
				start = -1
			}
		}
	}

	return blocks
}

// decodeObject parses s as a single JSON object into a fresh T.
func decodeObject[T any](s string) (T, error) {
	var v T
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return v, fmt.Errorf("not a JSON object")
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
