// Package sessionmerge groups activity records by application and merges
// temporally close records into sessions.
package sessionmerge

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
	"github.com/fakeyudi/awcal/internal/reconcile"
)

// DefaultGapTolerance spans short away breaks between same-app records.
const DefaultGapTolerance = 666 * time.Second

// DefaultMinDuration is the shortest session worth a calendar entry.
const DefaultMinDuration = 90 * time.Second

// Session is a run of same-app activity.
type Session struct {
	App    string
	Start  time.Time
	End    time.Time
	Titles []string // unique, in first-seen order
}

// Duration returns the session's length.
func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Merge groups records by trimmed app name and, within each group, extends
// the open session while the gap to the next record is at most tolerance.
// The result is ordered by start time.
func Merge(records []activity.Record, tolerance time.Duration) []Session {
	groups := map[string][]activity.Record{}
	var order []string
	for _, r := range records {
		app := strings.TrimSpace(r.App)
		if app == "" {
			app = activity.UnknownApp
		}
		if _, ok := groups[app]; !ok {
			order = append(order, app)
		}
		groups[app] = append(groups[app], r)
	}

	var out []Session
	for _, app := range order {
		out = append(out, mergeGroup(app, groups[app], tolerance)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].App < out[j].App
	})
	return out
}

func mergeGroup(app string, records []activity.Record, tolerance time.Duration) []Session {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	var out []Session
	var cur *Session
	seen := map[string]bool{}

	open := func(r activity.Record) {
		cur = &Session{App: app, Start: r.Timestamp, End: r.End()}
		seen = map[string]bool{}
		addTitle(cur, seen, r.Title)
	}

	for _, r := range records {
		if cur == nil {
			open(r)
			continue
		}
		gap := r.Timestamp.Sub(cur.End)
		if gap < 0 {
			gap = 0
		}
		if gap <= tolerance {
			if r.End().After(cur.End) {
				cur.End = r.End()
			}
			addTitle(cur, seen, r.Title)
			continue
		}
		out = append(out, *cur)
		open(r)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

func addTitle(s *Session, seen map[string]bool, title string) {
	if title == "" || seen[title] {
		return
	}
	seen[title] = true
	s.Titles = append(s.Titles, title)
}

// Items turns sessions into SyncItems for calendar, dropping sessions
// shorter than minDuration.
func Items(sessions []Session, minDuration time.Duration, calendar string) []reconcile.SyncItem {
	items := make([]reconcile.SyncItem, 0, len(sessions))
	for _, s := range sessions {
		if s.Duration() < minDuration {
			continue
		}
		items = append(items, reconcile.SyncItem{
			Destination: calendar,
			Title:       Title(s),
			Description: Description(s),
			Start:       s.Start,
			End:         s.End,
		})
	}
	return items
}

// Title renders "<app> | <minutes>m".
func Title(s Session) string {
	return fmt.Sprintf("%s | %dm", s.App, int(math.Round(s.Duration().Minutes())))
}

// Description lists the session's window titles.
func Description(s Session) string {
	if len(s.Titles) == 0 {
		return ""
	}
	return "Titles:\n- " + strings.Join(s.Titles, "\n- ")
}
