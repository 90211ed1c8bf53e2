package channel

// Set is an insertion-ordered collection of channel names. The name is the
// dedup key, so a user notified twice still has one inbox entry.
type Set struct {
	names []Name
	seen  map[Name]struct{}
}

// NewSet returns a set seeded with names.
func NewSet(names ...Name) *Set {
	s := &Set{seen: make(map[Name]struct{}, len(names))}
	s.Add(names...)
	return s
}

// Add appends names that are not yet present.
func (s *Set) Add(names ...Name) {
	if s.seen == nil {
		s.seen = make(map[Name]struct{})
	}
	for _, n := range names {
		if _, ok := s.seen[n]; ok {
			continue
		}
		s.seen[n] = struct{}{}
		s.names = append(s.names, n)
	}
}

// Has reports whether n is in the set.
func (s *Set) Has(n Name) bool {
	_, ok := s.seen[n]
	return ok
}

func (s *Set) Len() int { return len(s.names) }

// Names returns a copy of the names in insertion order.
func (s *Set) Names() []Name {
	return append([]Name(nil), s.names...)
}
