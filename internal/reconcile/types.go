// Package reconcile keeps an external calendar in 1:1 correspondence with a
// desired set of items by computing and applying the minimal set of creates,
// updates and deletes.
package reconcile

import (
	"context"
	"fmt"
	"time"
)

// SyncItem is a desired calendar entry, produced by either aggregation mode.
type SyncItem struct {
	Destination string    `json:"destination"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Key returns the item's identity key.
func (s SyncItem) Key() Key {
	return NewKey(s.Destination, s.Title, s.Start)
}

// ExternalEntry is a snapshot of an entry already present in the store.
type ExternalEntry struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Key returns the entry's identity key.
func (e ExternalEntry) Key() Key {
	return NewKey(e.Destination, e.Title, e.Start)
}

// Key identifies one logical entry across runs. Start is floored to the
// second so sub-second drift in the store does not break matching.
type Key struct {
	Destination string
	Title       string
	StartSec    int64
}

// NewKey builds a Key, flooring start to whole seconds.
func NewKey(destination, title string, start time.Time) Key {
	return Key{Destination: destination, Title: title, StartSec: floorSeconds(start)}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Destination, k.Title, k.StartSec)
}

func floorSeconds(t time.Time) int64 {
	ns := t.UnixNano()
	sec := ns / int64(time.Second)
	if ns%int64(time.Second) < 0 {
		sec--
	}
	return sec
}

// Batch is a unit of work against the external store. Mutations are pending
// until Commit.
type Batch interface {
	Create(ctx context.Context, item SyncItem) (string, error)
	// Update changes only the end and description; identity fields are fixed.
	Update(ctx context.Context, id string, end time.Time, description string) error
	Delete(ctx context.Context, id string) error
	Commit() error
	Rollback() error
}

// Stats reports the outcome of one reconciliation run.
type Stats struct {
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Deleted   int           `json:"deleted"`
	Unchanged int           `json:"unchanged"`
	Errors    int           `json:"errors"`    // per-item failures, skipped
	Committed bool          `json:"committed"` // false when the final commit failed
	Duration  time.Duration `json:"duration"`
}
