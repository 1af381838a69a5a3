package reconcile

import "time"

// DefaultEndTolerance absorbs rounding drift when comparing end instants.
const DefaultEndTolerance = 2 * time.Second

// Update is a pending in-place change to an existing entry.
type Update struct {
	Entry ExternalEntry
	Item  SyncItem
}

// Plan is the diff between desired items and existing entries.
type Plan struct {
	Creates   []SyncItem
	Updates   []Update
	Deletes   []ExternalEntry
	Unchanged []ExternalEntry
	// Duplicates are desired items whose key was already claimed by an
	// earlier item in the same run. They are skipped.
	Duplicates []SyncItem
}

// Empty reports whether applying the plan would mutate nothing.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// Diff computes the plan that makes existing match desired. Existing entries
// are indexed by key with last-write-wins, so an earlier entry sharing a key
// with a later one is never matched and ends up deleted.
func Diff(desired []SyncItem, existing []ExternalEntry, endTolerance time.Duration) Plan {
	index := make(map[Key]ExternalEntry, len(existing))
	for _, e := range existing {
		index[e.Key()] = e
	}

	var plan Plan
	touched := make(map[string]bool, len(existing))
	claimed := make(map[Key]bool, len(desired))

	for _, item := range desired {
		key := item.Key()
		if claimed[key] {
			plan.Duplicates = append(plan.Duplicates, item)
			continue
		}
		claimed[key] = true

		ex, ok := index[key]
		if !ok {
			plan.Creates = append(plan.Creates, item)
			continue
		}
		touched[ex.ID] = true
		if absDuration(ex.End.Sub(item.End)) > endTolerance || ex.Description != item.Description {
			plan.Updates = append(plan.Updates, Update{Entry: ex, Item: item})
		} else {
			plan.Unchanged = append(plan.Unchanged, ex)
		}
	}

	deleted := make(map[string]bool)
	for _, e := range existing {
		if touched[e.ID] || deleted[e.ID] {
			continue
		}
		deleted[e.ID] = true
		plan.Deletes = append(plan.Deletes, e)
	}
	return plan
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
