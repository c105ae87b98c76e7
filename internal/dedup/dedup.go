// Package dedup remembers recently processed event ids.
package dedup

import "sync"

// Default capacity policy: past MaxSize entries, keep the newest KeepSize.
const (
	DefaultMaxSize  = 1000
	DefaultKeepSize = 500
)

// Set is a bounded, insertion-ordered set of ids.
type Set struct {
	mu    sync.Mutex
	max   int
	keep  int
	order []string
	seen  map[string]struct{}
}

// New creates a set. Non-positive sizes use the defaults.
func New(maxSize, keepSize int) *Set {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if keepSize <= 0 || keepSize > maxSize {
		keepSize = DefaultKeepSize
		if keepSize > maxSize {
			keepSize = maxSize
		}
	}
	return &Set{
		max:  maxSize,
		keep: keepSize,
		seen: make(map[string]struct{}),
	}
}

// Add records id and reports whether it was new.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.max {
		drop := len(s.order) - s.keep
		for _, old := range s.order[:drop] {
			delete(s.seen, old)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
	return true
}

// Contains reports whether id is remembered.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[id]
	return ok
}

// Len returns the number of remembered ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}
