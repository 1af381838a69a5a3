// Package activity holds the activity records produced by the tracking
// source and the filters applied to them before aggregation.
package activity

import "time"

// Uncategorized is the category used when a record carries none.
const Uncategorized = "Uncategorized"

// UnknownApp is the grouping key for records without an application name.
const UnknownApp = "Unknown"

// Record is a single timestamped, duration-tagged activity sample.
type Record struct {
	Timestamp  time.Time
	Duration   time.Duration
	App        string
	Title      string   // empty when the source reported none
	Categories []string // resolved category path, most general first
}

// End returns the instant the record stops covering.
func (r Record) End() time.Time {
	return r.Timestamp.Add(r.Duration)
}

// Category returns the record's dominant category: its first category, or
// Uncategorized when none was resolved.
func (r Record) Category() string {
	if len(r.Categories) > 0 && r.Categories[0] != "" {
		return r.Categories[0]
	}
	return Uncategorized
}

// AwayInterval is a span during which the user was idle or away.
type AwayInterval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within [Start, End).
func (a AwayInterval) Contains(t time.Time) bool {
	return !t.Before(a.Start) && t.Before(a.End)
}
