package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/privanote/pkg/types"
)

// errNoJSON is returned when a reply contains no parseable JSON object.
var errNoJSON = errors.New("analysis: no JSON object in reply")

// parseReply decodes a backend reply into a normalized result. Replies that
// are not pure JSON are searched for the first balanced object span.
// defaultConfidence fills a missing or malformed confidence value.
func parseReply(raw string, defaultConfidence float64) (types.AnalysisResult, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return types.AnalysisResult{}, err
	}

	r := types.AnalysisResult{
		Summary:         asString(obj["summary"]),
		ActionItems:     asStrings(obj["action_items"]),
		KeyDecisions:    asStrings(obj["key_decisions"]),
		TopicsDiscussed: asStrings(obj["topics_discussed"]),
		Participants:    dedupeNames(asStrings(obj["participants"])),
		NextSteps:       asStrings(obj["next_steps"]),
		Confidence:      asConfidence(obj["confidence"], defaultConfidence),
	}
	r.Normalize()
	return r, nil
}

func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj, nil
	}
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if span, ok := balancedObject(raw[start:]); ok {
			if err := json.Unmarshal([]byte(span), &obj); err == nil && obj != nil {
				return obj, nil
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errNoJSON
}

// balancedObject returns the prefix of s that forms a brace-balanced object.
// s must start with '{'. Braces inside JSON strings, including escaped
// quotes, do not count.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// ─── Field coercion ───────────────────────────────────────────────────────────

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := asStrings(t)
		return strings.Join(parts, " ")
	default:
		return stringify(t)
	}
}

// asStrings coerces a JSON value into a list of non-empty strings. A bare
// string becomes a one-item list and non-string elements are stringified.
func asStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			var s string
			if str, ok := e.(string); ok {
				s = strings.TrimSpace(str)
			} else if e != nil {
				s = stringify(e)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return []string{}
	default:
		return []string{stringify(t)}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func asConfidence(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}
