package correlation

import "sync"

// Store keeps the open groups of all runs in memory. Groups only live between a
// dispatch and its fan-in, so they are not persisted.
type Store struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

func NewStore() *Store {
	return &Store{groups: make(map[string]*Group)}
}

// Create registers a new group. If it already exists the existing pointer is
// returned.
func (s *Store) Create(g *Group) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.groups[g.ID]; ok {
		return existing
	}
	s.groups[g.ID] = g
	return g
}

func (s *Store) Get(id string) *Group {
	s.mu.RLock()
	g := s.groups[id]
	s.mu.RUnlock()
	return g
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.groups, id)
	s.mu.Unlock()
}

// Complete marks member done within group id. When that completes the group, the
// group is removed and returned with complete=true. Unknown groups return nil.
func (s *Store) Complete(id, member string, failed bool) (group *Group, complete bool) {
	g := s.Get(id)
	if g == nil {
		return nil, false
	}
	if !g.MarkDone(member, failed) {
		return g, false
	}
	s.Delete(id)
	return g, true
}

// Len returns the number of open groups.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// Iterate executes fn for each group under read lock.
func (s *Store) Iterate(fn func(id string, g *Group)) {
	s.mu.RLock()
	for id, g := range s.groups {
		fn(id, g)
	}
	s.mu.RUnlock()
}
