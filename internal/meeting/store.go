package meeting

import "context"

// Store persists meetings. All implementations must be safe for concurrent
// use; every operation is atomic relative to concurrent readers.
type Store interface {
	// Save validates and persists m. An empty ID is replaced with a new
	// time-ordered id. SavedAt and Version are always stamped. Returns
	// [ErrValidation] or [ErrDuplicateID].
	Save(ctx context.Context, m Meeting) (string, error)

	// Get returns the meeting with the id or [ErrNotFound].
	Get(ctx context.Context, id string) (Meeting, error)

	// Update applies p to the meeting with the id. CreatedAt is preserved and
	// UpdatedAt stamped. It reports false when the id is unknown.
	Update(ctx context.Context, id string, p Patch) (bool, error)

	// Delete removes the meeting with the id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns copies of all meetings, newest first.
	List(ctx context.Context) ([]Meeting, error)

	// ClearAll removes every meeting.
	ClearAll(ctx context.Context) error

	// Search returns meetings whose selected fields contain query,
	// case-insensitively, newest first. No fields means [DefaultFields].
	Search(ctx context.Context, query string, fields ...Field) ([]Meeting, error)

	// Stats summarises the stored meetings.
	Stats(ctx context.Context) (Stats, error)

	// ExportAll returns every meeting wrapped in an [Archive].
	ExportAll(ctx context.Context) (Archive, error)

	// Import adds the archive's meetings, skipping invalid records and ids
	// that already exist. It returns the number of meetings added.
	Import(ctx context.Context, a Archive) (int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
