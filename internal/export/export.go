// Package export renders meetings as portable documents: a Markdown report
// for people and a pretty-printed JSON document that round-trips through
// [FromJSON] without loss.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/privanote/internal/meeting"
)

// ErrSerialization is returned for meetings that are structurally invalid
// and for documents that cannot be decoded.
var ErrSerialization = errors.New("export: serialization failed")

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "markdown", "md" and "json". Empty selects Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("export: unknown format %q (want markdown or json)", s)
}

// Extension returns the file extension for the format, without a dot.
func (f Format) Extension() string {
	if f == FormatJSON {
		return "json"
	}
	return "md"
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// Render dispatches to [Markdown] or [JSON].
func Render(m meeting.Meeting, f Format) (string, error) {
	if f == FormatJSON {
		return JSON(m)
	}
	return Markdown(m)
}

// FileName returns a file name for the exported meeting built from its title
// and date.
func FileName(m meeting.Meeting, f Format) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(m.Title))
	if base == "" {
		base = "meeting"
	}
	if m.Date != "" {
		base += "_" + m.Date
	}
	return base + "." + f.Extension()
}

// JSON renders m as a JSON document indented with two spaces.
func JSON(m meeting.Meeting) (string, error) {
	if err := m.Validate(); err != nil {
		return "", errors.Join(ErrSerialization, err)
	}
	return marshal(m)
}

// FromJSON decodes a document produced by [JSON] and validates it. The
// meeting is returned exactly as written, so FromJSON(JSON(m)) equals m;
// stores normalize the analysis when the meeting is saved.
func FromJSON(s string) (meeting.Meeting, error) {
	var m meeting.Meeting
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return meeting.Meeting{}, fmt.Errorf("%w: decode meeting: %w", ErrSerialization, err)
	}
	if err := m.Validate(); err != nil {
		return meeting.Meeting{}, errors.Join(ErrSerialization, err)
	}
	return m, nil
}

// ArchiveJSON renders a full-store archive. Individual meetings are not
// validated; importers skip invalid records.
func ArchiveJSON(a meeting.Archive) (string, error) {
	if a.Meetings == nil {
		a.Meetings = []meeting.Meeting{}
	}
	return marshal(a)
}

// ReadArchive decodes an archive produced by [ArchiveJSON].
func ReadArchive(r io.Reader) (meeting.Archive, error) {
	var a meeting.Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return meeting.Archive{}, fmt.Errorf("%w: decode archive: %w", ErrSerialization, err)
	}
	return a, nil
}

func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
