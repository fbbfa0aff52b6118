package core

import (
	"sync"
	"time"
)

// StateStore guards the Agent State shared by every concurrent negotiation.
//
// Contract:
//   - Snapshot returns a deep copy; readers never observe a partial update
//   - Replace installs a whole snapshot; there is no partial patching
//   - Only the settlement client calls Replace
type StateStore struct {
	mu      sync.RWMutex
	current Snapshot
	version uint64
	updated time.Time
}

// NewStateStore creates a store holding an initial snapshot.
func NewStateStore(initial Snapshot) *StateStore {
	return &StateStore{current: initial.Clone(), updated: time.Now()}
}

// Snapshot returns an immutable copy of the current Agent State.
func (s *StateStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Replace atomically installs snap as the new Agent State.
func (s *StateStore) Replace(snap Snapshot) {
	c := snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
	s.version++
	s.updated = time.Now()
}

// Version returns how many times the state has been replaced.
func (s *StateStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Updated returns the time of the last replacement (or construction).
func (s *StateStore) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
