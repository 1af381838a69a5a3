// Package cursor persists the instant of the last session sync so the next
// run only reads what came after it.
package cursor

import (
	"context"
	"errors"
	"time"
)

// ErrNoCursor is returned by Load when no sync has been recorded yet.
var ErrNoCursor = errors.New("no sync cursor recorded")

// Run describes one completed sync.
type Run struct {
	Start    time.Time `json:"start"` // becomes the next run's window start
	Synced   int       `json:"events_synced"`
	SyncedAt time.Time `json:"synced_at"`
}

// Store reads and records sync runs.
type Store interface {
	Load(ctx context.Context) (time.Time, error) // returns ErrNoCursor if none exists
	Save(ctx context.Context, run Run) error
}

// WindowStart picks where a run should start reading: the stored cursor, or
// now-lookback when there is none or it lies in the future.
func WindowStart(cursor time.Time, found bool, now time.Time, lookback time.Duration) (time.Time, bool) {
	if !found || cursor.IsZero() || cursor.After(now) {
		return now.Add(-lookback), false
	}
	return cursor, true
}
