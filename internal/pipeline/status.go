package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/fakeyudi/awcal/internal/cursor"
)

// Counter counts entries per calendar.
type Counter interface {
	Count(ctx context.Context, calendar string, start, end time.Time) (int, error)
}

// CalendarCount is the number of entries a calendar holds in the window.
type CalendarCount struct {
	Calendar string `json:"calendar"`
	Entries  int    `json:"entries"`
}

// Status summarizes the synced state.
type Status struct {
	Cursor      *time.Time      `json:"cursor,omitempty"` // nil when no session sync ran yet
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Calendars   []CalendarCount `json:"calendars"`
}

// Status reports the session cursor and per-calendar entry counts over the
// block sync window. A nil cursor store skips the cursor.
func (p *Pipeline) Status(ctx context.Context, counter Counter) (Status, error) {
	now := p.Now().UTC()
	st := Status{WindowStart: now.Add(-p.Config.SyncWindow()), WindowEnd: now}

	if p.Cursor != nil {
		last, err := p.Cursor.Load(ctx)
		switch {
		case err == nil:
			st.Cursor = &last
		case !errors.Is(err, cursor.ErrNoCursor):
			return st, err
		}
	}

	names := p.Config.Routes().Destinations()
	names = appendMissing(names, p.Config.SessionCalendar)
	for _, name := range names {
		n, err := counter.Count(ctx, name, st.WindowStart, st.WindowEnd)
		if err != nil {
			return st, err
		}
		st.Calendars = append(st.Calendars, CalendarCount{Calendar: name, Entries: n})
	}
	return st, nil
}

func appendMissing(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
