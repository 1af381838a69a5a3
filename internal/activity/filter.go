package activity

import (
	"sort"
	"time"
)

// FilterNoise drops records shorter than minDuration. Order is preserved.
func FilterNoise(records []Record, minDuration time.Duration) []Record {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Duration < minDuration {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// FilterAway drops every record whose start instant lies inside any away
// interval. Only the start is tested: a record that begins while active and
// runs into an away period is kept whole.
func FilterAway(records []Record, away []AwayInterval) []Record {
	if len(away) == 0 {
		return records
	}

	spans := make([]AwayInterval, 0, len(away))
	for _, a := range away {
		if a.End.After(a.Start) {
			spans = append(spans, a)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	// reach[i] is the latest end among spans[0..i].
	reach := make([]time.Time, len(spans))
	for i, s := range spans {
		reach[i] = s.End
		if i > 0 && reach[i-1].After(s.End) {
			reach[i] = reach[i-1]
		}
	}

	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if covered(spans, reach, r.Timestamp) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func covered(spans []AwayInterval, reach []time.Time, t time.Time) bool {
	// Index of the last span starting at or before t.
	i := sort.Search(len(spans), func(i int) bool { return spans[i].Start.After(t) }) - 1
	if i < 0 {
		return false
	}
	return t.Before(reach[i])
}
