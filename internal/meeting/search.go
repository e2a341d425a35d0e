package meeting

import (
	"fmt"
	"strings"
)

// Field names a searchable part of a meeting.
type Field string

const (
	FieldTitle      Field = "title"
	FieldTranscript Field = "transcript"
	FieldNotes      Field = "notes"

	// FieldAnalysis covers the summary, action items and key decisions.
	FieldAnalysis Field = "analysis"
)

// DefaultFields is searched when Search is called without explicit fields.
var DefaultFields = []Field{FieldTitle, FieldTranscript, FieldNotes, FieldAnalysis}

// ParseFields converts field names to [Field] values. Unknown names are an
// error wrapping [ErrValidation]. An empty input yields [DefaultFields].
func ParseFields(names []string) ([]Field, error) {
	if len(names) == 0 {
		return DefaultFields, nil
	}
	out := make([]Field, 0, len(names))
	for _, n := range names {
		f := Field(strings.ToLower(strings.TrimSpace(n)))
		switch f {
		case FieldTitle, FieldTranscript, FieldNotes, FieldAnalysis:
			out = append(out, f)
		default:
			return nil, fmt.Errorf("%w: unknown search field %q", ErrValidation, n)
		}
	}
	return out, nil
}

// searchText concatenates the selected fields of m separated by spaces.
func searchText(m *Meeting, fields []Field) string {
	var b strings.Builder
	for _, f := range fields {
		switch f {
		case FieldTitle:
			b.WriteString(" " + m.Title)
		case FieldTranscript:
			b.WriteString(" " + m.Transcript)
		case FieldNotes:
			b.WriteString(" " + m.Notes)
		case FieldAnalysis:
			if m.Analysis == nil {
				continue
			}
			b.WriteString(" " + m.Analysis.Summary)
			b.WriteString(" " + strings.Join(m.Analysis.ActionItems, " "))
			b.WriteString(" " + strings.Join(m.Analysis.KeyDecisions, " "))
		}
	}
	return b.String()
}

// matches reports whether query occurs case-insensitively in the selected
// fields of m.
func matches(m *Meeting, query string, fields []Field) bool {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return strings.Contains(strings.ToLower(searchText(m, fields)), strings.ToLower(query))
}
