package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
	"github.com/fakeyudi/awcal/internal/activitywatch"
	"github.com/fakeyudi/awcal/internal/calendar"
	"github.com/fakeyudi/awcal/internal/cursor"
	"github.com/fakeyudi/awcal/internal/reconcile"
)

type fakeSource struct {
	records []activity.Record // categorized and raw window records alike
	away    []activity.AwayInterval
	err     error

	windowStart time.Time // last requested start
}

func (f *fakeSource) FetchCategoryRules(ctx context.Context) ([]activitywatch.CategoryRule, error) {
	return nil, f.err
}

func (f *fakeSource) FetchRecords(ctx context.Context, rules []activitywatch.CategoryRule, start, end time.Time) ([]activity.Record, error) {
	f.windowStart = start
	return f.between(start, end), f.err
}

func (f *fakeSource) FetchWindowRecords(ctx context.Context, start, end time.Time) ([]activity.Record, error) {
	f.windowStart = start
	return f.between(start, end), f.err
}

func (f *fakeSource) FetchAwayIntervals(ctx context.Context, start, end time.Time) ([]activity.AwayInterval, error) {
	return f.away, f.err
}

func (f *fakeSource) between(start, end time.Time) []activity.Record {
	var out []activity.Record
	for _, r := range f.records {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

// fakeStore is an in-memory calendar store whose batches stage mutations
// until Commit.
type fakeStore struct {
	pingErr   error
	commitErr error

	calendars map[string]bool
	entries   map[string]reconcile.ExternalEntry
	nextID    int
	begun     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{calendars: map[string]bool{}, entries: map[string]reconcile.ExternalEntry{}}
}

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeStore) EnsureDestination(ctx context.Context, name string) (calendar.Calendar, error) {
	s.calendars[name] = true
	return calendar.Calendar{ID: name, Name: name}, nil
}

func (s *fakeStore) ListEntries(ctx context.Context, calendars []string, start, end time.Time) ([]reconcile.ExternalEntry, error) {
	want := map[string]bool{}
	for _, c := range calendars {
		want[c] = true
	}
	var out []reconcile.ExternalEntry
	for _, e := range s.entries {
		if want[e.Destination] && !e.Start.Before(start) && e.Start.Before(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) Count(ctx context.Context, cal string, start, end time.Time) (int, error) {
	entries, err := s.ListEntries(ctx, []string{cal}, start, end)
	return len(entries), err
}

func (s *fakeStore) Begin(ctx context.Context) (reconcile.Batch, error) {
	s.begun++
	return &fakeBatch{store: s}, nil
}

// seed inserts an entry directly.
func (s *fakeStore) seed(e reconcile.ExternalEntry) {
	s.nextID++
	e.ID = fmt.Sprintf("seed-%d", s.nextID)
	s.entries[e.ID] = e
}

func (s *fakeStore) list() []reconcile.ExternalEntry {
	out := make([]reconcile.ExternalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

type fakeBatch struct {
	store *fakeStore
	ops   []func()
}

func (b *fakeBatch) Create(ctx context.Context, item reconcile.SyncItem) (string, error) {
	if !b.store.calendars[item.Destination] {
		return "", calendar.ErrDestinationUnresolvable
	}
	b.store.nextID++
	id := fmt.Sprintf("ev-%d", b.store.nextID)
	b.ops = append(b.ops, func() {
		b.store.entries[id] = reconcile.ExternalEntry{ID: id, Destination: item.Destination, Title: item.Title,
			Description: item.Description, Start: item.Start, End: item.End}
	})
	return id, nil
}

func (b *fakeBatch) Update(ctx context.Context, id string, end time.Time, description string) error {
	if _, ok := b.store.entries[id]; !ok {
		return errors.New("not found")
	}
	b.ops = append(b.ops, func() {
		e := b.store.entries[id]
		e.End, e.Description = end, description
		b.store.entries[id] = e
	})
	return nil
}

func (b *fakeBatch) Delete(ctx context.Context, id string) error {
	if _, ok := b.store.entries[id]; !ok {
		return errors.New("not found")
	}
	b.ops = append(b.ops, func() { delete(b.store.entries, id) })
	return nil
}

func (b *fakeBatch) Commit() error {
	if b.store.commitErr != nil {
		return b.store.commitErr
	}
	for _, op := range b.ops {
		op()
	}
	b.ops = nil
	return nil
}

func (b *fakeBatch) Rollback() error {
	b.ops = nil
	return nil
}

type fakeCursor struct {
	cursor time.Time
	saved  []cursor.Run
	err    error
	loads  int
}

func (c *fakeCursor) Load(ctx context.Context) (time.Time, error) {
	c.loads++
	if c.err != nil {
		return time.Time{}, c.err
	}
	if c.cursor.IsZero() {
		return time.Time{}, cursor.ErrNoCursor
	}
	return c.cursor, nil
}

func (c *fakeCursor) Save(ctx context.Context, run cursor.Run) error {
	c.saved = append(c.saved, run)
	c.cursor = run.Start
	return nil
}
