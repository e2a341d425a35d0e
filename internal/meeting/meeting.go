// Package meeting holds the persisted meeting record and the stores that keep
// it: an in-process [MemStore] and a PostgreSQL-backed [PostgresStore].
//
// Both stores share validation, id assignment and search semantics so callers
// can swap one for the other without observable differences.
package meeting

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/privanote/pkg/types"
)

// Version is the record format version stamped on every saved meeting.
const Version = "1.0"

var (
	// ErrValidation is returned when a meeting lacks a title, transcript or
	// analysis.
	ErrValidation = errors.New("meeting: validation failed")

	// ErrNotFound is returned by Get when no meeting with the id exists.
	ErrNotFound = errors.New("meeting: not found")

	// ErrDuplicateID is returned by Save when the id is already taken.
	ErrDuplicateID = errors.New("meeting: duplicate id")
)

// Meeting is one processed recording with its transcript and analysis.
type Meeting struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	Notes string `json:"notes"`

	// Duration is the audio length in minutes.
	Duration float64 `json:"duration"`

	// FileSize is the size of the original audio file in MB.
	FileSize float64 `json:"file_size"`

	Transcript string                `json:"transcript"`
	Analysis   *types.AnalysisResult `json:"analysis"`

	CreatedAt time.Time `json:"created_at"`
	SavedAt   time.Time `json:"saved_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	Source  types.Source `json:"source"`
	Version string       `json:"version"`
}

// Validate reports every missing required field, joined, each wrapping
// [ErrValidation].
func (m *Meeting) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Title) == "" {
		errs = append(errs, fmt.Errorf("%w: title is required", ErrValidation))
	}
	if strings.TrimSpace(m.Transcript) == "" {
		errs = append(errs, fmt.Errorf("%w: transcript is required", ErrValidation))
	}
	if m.Analysis == nil {
		errs = append(errs, fmt.Errorf("%w: analysis is required", ErrValidation))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of m.
func (m Meeting) Clone() Meeting {
	m.Analysis = m.Analysis.Clone()
	return m
}

// Patch carries the user-editable fields of an update. Nil fields are left
// untouched.
type Patch struct {
	Title      *string               `json:"title,omitempty"`
	Date       *string               `json:"date,omitempty"`
	Notes      *string               `json:"notes,omitempty"`
	Transcript *string               `json:"transcript,omitempty"`
	Analysis   *types.AnalysisResult `json:"analysis,omitempty"`
}

// Validate rejects patches that would blank a required field.
func (p Patch) Validate() error {
	var errs []error
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		errs = append(errs, fmt.Errorf("%w: title must not be empty", ErrValidation))
	}
	if p.Transcript != nil && strings.TrimSpace(*p.Transcript) == "" {
		errs = append(errs, fmt.Errorf("%w: transcript must not be empty", ErrValidation))
	}
	return errors.Join(errs...)
}

func (p Patch) apply(m *Meeting) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Date != nil {
		m.Date = *p.Date
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.Transcript != nil {
		m.Transcript = *p.Transcript
	}
	if p.Analysis != nil {
		a := p.Analysis.Clone()
		a.Normalize()
		m.Analysis = a
	}
}

// Stats summarises the stored meetings.
type Stats struct {
	TotalMeetings int `json:"total_meetings"`

	// TotalDuration is the summed audio length in minutes.
	TotalDuration float64 `json:"total_duration"`

	// StorageSizeEstimate is a rough size of the stored text in MB.
	StorageSizeEstimate float64 `json:"storage_size_estimate"`

	Oldest time.Time `json:"oldest_meeting,omitzero"`
	Newest time.Time `json:"newest_meeting,omitzero"`
}

// Archive is a full-store export.
type Archive struct {
	ExportDate time.Time `json:"export_date"`
	Version    string    `json:"version"`
	Meetings   []Meeting `json:"meetings"`
}

// ─── Shared store logic ───────────────────────────────────────────────────────

// prepare validates m and fills the store-managed fields. It is called by
// every Store implementation before persisting.
func prepare(m *Meeting, now time.Time) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("meeting: generate id: %w", err)
		}
		m.ID = id.String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.Source == "" {
		m.Source = types.SourceUploaded
	}
	m.SavedAt = now
	m.Version = Version
	m.Analysis = m.Analysis.Clone()
	m.Analysis.Normalize()
	return nil
}

// sortNewestFirst orders meetings by creation time, newest first. Ties are
// broken by id so the order is stable across calls.
func sortNewestFirst(ms []Meeting) {
	slices.SortFunc(ms, func(a, b Meeting) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// textSize estimates the stored size of one meeting in bytes, counting the
// transcript and the serialized analysis at two bytes per character.
func textSize(m Meeting) int64 {
	n := len([]rune(m.Transcript))
	if m.Analysis != nil {
		if b, err := json.Marshal(m.Analysis); err == nil {
			n += len([]rune(string(b)))
		}
	}
	return int64(n) * 2
}

func bytesToMB(n int64) float64 { return float64(n) / (1024 * 1024) }
