package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedResponse is returned when a service response cannot be turned
// into the expected JSON value by any parsing tier.
var ErrMalformedResponse = errors.New("graph: malformed response")

// JSONKind selects the top-level JSON value a response must contain.
type JSONKind int

const (
	JSONArray JSONKind = iota
	JSONObject
)

func (k JSONKind) String() string {
	if k == JSONObject {
		return "object"
	}
	return "array"
}

func (k JSONKind) delimiters() (byte, byte) {
	if k == JSONObject {
		return '{', '}'
	}
	return '[', ']'
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON decodes an LLM response into v, tolerating the usual quirks.
// Tiers, in order:
//
//  1. strict decode of the trimmed response when it starts with the
//     expected delimiter;
//  2. strip a markdown code fence, then decode the substring from the first
//     opening delimiter to the last closing one;
//  3. run that substring through jsonrepair and decode the result.
//
// A response with no delimiter pair at all (pure prose) fails without being
// repaired. Errors wrap ErrMalformedResponse.
func ParseJSON(raw string, kind JSONKind, v any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	open, _ := kind.delimiters()
	if trimmed[0] == open {
		if err := json.Unmarshal([]byte(trimmed), v); err == nil {
			return nil
		}
	}

	candidate, ok := extractJSON(trimmed, kind)
	if !ok {
		return fmt.Errorf("%w: no JSON %s found", ErrMalformedResponse, kind)
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("%w: repair failed: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: decoding repaired %s: %v", ErrMalformedResponse, kind, err)
	}
	return nil
}

// extractJSON strips a code fence and returns the span between the first
// opening and the last closing delimiter of kind.
func extractJSON(raw string, kind JSONKind) (string, bool) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = strings.TrimSpace(m[1])
	}

	open, closing := kind.delimiters()
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
