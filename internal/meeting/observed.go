package meeting

import (
	"context"

	"github.com/MrWong99/privanote/internal/observe"
)

// Observed wraps s so that the meetings-stored gauge follows every write.
// Reads are forwarded unchanged.
func Observed(ctx context.Context, s Store, m *observe.Metrics) (Store, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	m.MeetingsStored.Add(ctx, int64(st.TotalMeetings))
	return &observedStore{Store: s, metrics: m}, nil
}

type observedStore struct {
	Store
	metrics *observe.Metrics
}

var _ Store = (*observedStore)(nil)

func (o *observedStore) Save(ctx context.Context, m Meeting) (string, error) {
	id, err := o.Store.Save(ctx, m)
	if err == nil {
		o.metrics.MeetingsStored.Add(ctx, 1)
	}
	return id, err
}

func (o *observedStore) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := o.Store.Delete(ctx, id)
	if ok {
		o.metrics.MeetingsStored.Add(ctx, -1)
	}
	return ok, err
}

func (o *observedStore) ClearAll(ctx context.Context) error {
	st, err := o.Store.Stats(ctx)
	if err != nil {
		return err
	}
	if err := o.Store.ClearAll(ctx); err != nil {
		return err
	}
	o.metrics.MeetingsStored.Add(ctx, -int64(st.TotalMeetings))
	return nil
}

func (o *observedStore) Import(ctx context.Context, a Archive) (int, error) {
	n, err := o.Store.Import(ctx, a)
	if n > 0 {
		o.metrics.MeetingsStored.Add(ctx, int64(n))
	}
	return n, err
}
