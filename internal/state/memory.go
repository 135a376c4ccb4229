package state

// MemoryStore keeps build state in memory. It is the manager's default
// when no store is configured, and what tests use.
type MemoryStore struct {
	state BuildState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the current in-memory state.
func (s *MemoryStore) Load() (BuildState, error) {
	return s.state, nil
}

// Save replaces the in-memory state.
func (s *MemoryStore) Save(st BuildState) error {
	s.state = st
	return nil
}
