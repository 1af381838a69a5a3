// Package bucket collapses activity records into fixed-grid calendar blocks
// by majority vote, then merges neighbouring blocks that land in the same
// calendar.
package bucket

import (
	"sort"
	"strings"
	"time"

	"github.com/fakeyudi/awcal/internal/activity"
	"github.com/fakeyudi/awcal/internal/reconcile"
)

// Options configures the grid. All durations must be positive and
// 2*Padding must be smaller than SlotWidth.
type Options struct {
	SlotWidth   time.Duration
	MinCoverage time.Duration // slots with less total overlap are dropped
	Padding     time.Duration // cosmetic shrink applied to each side of a block
	Routes      activity.Routes
	Aliases     activity.Aliases
}

// DefaultOptions returns the reference grid: 15-minute slots, a 3-minute
// coverage floor and 1 minute of padding.
func DefaultOptions(routes activity.Routes, aliases activity.Aliases) Options {
	return Options{
		SlotWidth:   15 * time.Minute,
		MinCoverage: 3 * time.Minute,
		Padding:     time.Minute,
		Routes:      routes,
		Aliases:     aliases,
	}
}

// Block is a grid-aligned span with a single dominant category.
type Block struct {
	Start    time.Time
	End      time.Time
	Category string
	Apps     []string
	Details  []string
}

type slot struct {
	total time.Duration
	cats  *tallies
}

// Bucketize assigns every slot overlapped by records to its dominant
// category and returns the surviving blocks in ascending start order,
// before any merging.
func Bucketize(records []activity.Record, opts Options) []Block {
	slots := map[int64]*slot{}
	width := int64(opts.SlotWidth)

	for _, r := range records {
		start, end := r.Timestamp, r.End()
		category := r.Category()
		app := opts.Aliases.Display(r.App)

		for cur := start; cur.Before(end); {
			slotStart := alignDown(cur, width)
			slotEnd := slotStart.Add(opts.SlotWidth)
			overlap := minTime(end, slotEnd).Sub(maxTime(start, slotStart))
			if overlap > 0 {
				key := slotStart.UnixNano()
				s, ok := slots[key]
				if !ok {
					s = &slot{cats: newTallies()}
					slots[key] = s
				}
				c := s.cats.get(category)
				c.duration += overlap
				c.apps.add(app)
				if r.Title != "" {
					c.details = append(c.details, r.Title)
				}
				s.total += overlap
			}
			cur = slotEnd
		}
	}

	keys := make([]int64, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	blocks := make([]Block, 0, len(keys))
	for _, k := range keys {
		s := slots[k]
		if s.total < opts.MinCoverage {
			continue
		}
		name, win, ok := s.cats.winner()
		if !ok {
			continue
		}
		start := time.Unix(0, k).In(time.UTC)
		blocks = append(blocks, Block{
			Start:    start,
			End:      start.Add(opts.SlotWidth),
			Category: name,
			Apps:     win.apps.values(),
			Details:  append([]string(nil), win.details...),
		})
	}
	return blocks
}

// MergeAdjacent coalesces consecutive blocks that touch and route to the
// same calendar, even when their categories differ. The first block's
// category is kept.
func MergeAdjacent(blocks []Block, routes activity.Routes) []Block {
	if len(blocks) == 0 {
		return nil
	}

	var merged []Block
	cur := blocks[0]
	var apps orderedSet
	apps.addAll(cur.Apps)
	details := append([]string(nil), cur.Details...)

	flush := func() {
		cur.Apps = apps.values()
		cur.Details = details
		merged = append(merged, cur)
	}

	for _, next := range blocks[1:] {
		if next.Start.Equal(cur.End) && routes.Destination(next.Category) == routes.Destination(cur.Category) {
			cur.End = next.End
			apps.addAll(next.Apps)
			details = append(details, next.Details...)
			continue
		}
		flush()
		cur = next
		apps = orderedSet{}
		apps.addAll(cur.Apps)
		details = append([]string(nil), cur.Details...)
	}
	flush()
	return merged
}

// Item finalizes a block into a SyncItem: padded bounds, apps joined into
// the title and de-duplicated details as the description.
func (b Block) Item(routes activity.Routes, padding time.Duration) reconcile.SyncItem {
	return reconcile.SyncItem{
		Destination: routes.Destination(b.Category),
		Title:       strings.Join(b.Apps, ", "),
		Description: strings.Join(dedupe(b.Details), "\n"),
		Start:       b.Start.Add(padding),
		End:         b.End.Add(-padding),
	}
}

// Build runs the full grid pipeline: bucketize, merge and finalize.
func Build(records []activity.Record, opts Options) []reconcile.SyncItem {
	blocks := MergeAdjacent(Bucketize(records, opts), opts.Routes)
	items := make([]reconcile.SyncItem, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, b.Item(opts.Routes, opts.Padding))
	}
	return items
}

// AlignDown floors t to the slot grid of the given width.
func AlignDown(t time.Time, width time.Duration) time.Time {
	return alignDown(t, int64(width))
}

// alignDown floors t to a multiple of width nanoseconds since the Unix epoch.
func alignDown(t time.Time, width int64) time.Time {
	ns := t.UnixNano()
	rem := ns % width
	if rem < 0 {
		rem += width
	}
	return time.Unix(0, ns-rem).In(time.UTC)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
