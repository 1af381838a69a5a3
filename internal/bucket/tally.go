package bucket

import "time"

// categoryTally accumulates one category's share of a slot.
type categoryTally struct {
	duration time.Duration
	apps     orderedSet
	details  []string
}

// tallies is an insertion-ordered map from category name to tally. The
// majority vote breaks ties by encounter order, so iteration order must be
// the order categories were first seen.
type tallies struct {
	index map[string]int
	names []string
	items []*categoryTally
}

func newTallies() *tallies {
	return &tallies{index: map[string]int{}}
}

// get returns the tally for name, creating it at the end of the order.
func (t *tallies) get(name string) *categoryTally {
	if i, ok := t.index[name]; ok {
		return t.items[i]
	}
	t.index[name] = len(t.items)
	t.names = append(t.names, name)
	c := &categoryTally{}
	t.items = append(t.items, c)
	return c
}

// winner returns the category with the largest duration. Ties go to the
// category seen first.
func (t *tallies) winner() (string, *categoryTally, bool) {
	best := -1
	for i, c := range t.items {
		if best < 0 || c.duration > t.items[best].duration {
			best = i
		}
	}
	if best < 0 {
		return "", nil, false
	}
	return t.names[best], t.items[best], true
}

// orderedSet keeps unique strings in first-seen order.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) addAll(vs []string) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *orderedSet) values() []string {
	return append([]string(nil), s.items...)
}

func dedupe(vs []string) []string {
	var s orderedSet
	s.addAll(vs)
	return s.values()
}
