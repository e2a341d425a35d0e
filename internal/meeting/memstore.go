package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Meetings
// live only as long as the process. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	meetings map[string]Meeting

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{meetings: make(map[string]Meeting)}
}

func (s *MemStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Save implements [Store.Save].
func (s *MemStore) Save(_ context.Context, m Meeting) (string, error) {
	if err := prepare(&m, s.clock()); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meetings == nil {
		s.meetings = make(map[string]Meeting)
	}
	if _, exists := s.meetings[m.ID]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateID, m.ID)
	}
	s.meetings[m.ID] = m
	return m.ID, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meetings[id]
	if !ok {
		return Meeting{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return m.Clone(), nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(_ context.Context, id string, p Patch) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok {
		return false, nil
	}
	m = m.Clone()
	p.apply(&m)
	m.UpdatedAt = s.clock()
	s.meetings[id] = m
	return true, nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[id]; !ok {
		return false, nil
	}
	delete(s.meetings, id)
	return true, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, m.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// ClearAll implements [Store.ClearAll].
func (s *MemStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings = make(map[string]Meeting)
	return nil
}

// Search implements [Store.Search].
func (s *MemStore) Search(_ context.Context, query string, fields ...Field) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Meeting{}
	for _, m := range s.meetings {
		if matches(&m, query, fields) {
			out = append(out, m.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Stats implements [Store.Stats].
func (s *MemStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st   Stats
		size int64
	)
	for _, m := range s.meetings {
		st.TotalMeetings++
		st.TotalDuration += m.Duration
		size += textSize(m)
		if st.Oldest.IsZero() || m.CreatedAt.Before(st.Oldest) {
			st.Oldest = m.CreatedAt
		}
		if m.CreatedAt.After(st.Newest) {
			st.Newest = m.CreatedAt
		}
	}
	st.StorageSizeEstimate = bytesToMB(size)
	return st, nil
}

// ExportAll implements [Store.ExportAll].
func (s *MemStore) ExportAll(ctx context.Context) (Archive, error) {
	ms, err := s.List(ctx)
	if err != nil {
		return Archive{}, err
	}
	return Archive{ExportDate: s.clock(), Version: Version, Meetings: ms}, nil
}

// Import implements [Store.Import].
func (s *MemStore) Import(_ context.Context, a Archive) (int, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meetings == nil {
		s.meetings = make(map[string]Meeting)
	}
	added := 0
	for _, m := range a.Meetings {
		if err := prepare(&m, now); err != nil {
			slog.Debug("meeting: import: skipping invalid record", "id", m.ID, "err", err)
			continue
		}
		if _, exists := s.meetings[m.ID]; exists {
			continue
		}
		s.meetings[m.ID] = m
		added++
	}
	return added, nil
}

// Ping implements [Store.Ping]. An in-memory store is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }
