package consent

import "sync"

// Store is the in-memory peer → state mapping derived from journal order.
//
// Contract:
// - Get MUST return StateUnknown for peers with no mapping.
// - Apply MUST fold a batch atomically: readers never observe a partially
//   applied batch, and later entries for the same peer win.
// - ApplyProof MUST only ever set StateAllowed, and only when the peer is
//   currently StateUnknown; an explicit mapping always outranks a proof.
// - No operation ever removes a mapping: once a peer has explicit state it
//   never returns to StateUnknown.
type Store struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewStore() *Store {
	return &Store{states: make(map[string]State)}
}

// Get returns the current state for peer. Pure and non-blocking with respect
// to in-flight folds (it waits only for the lock, never for I/O).
func (s *Store) Get(peer string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[foldKey(peer)]
}

// Apply folds entries into the map in order, last entry per peer winning.
// Entries the fold does not understand are skipped. Peers not mentioned in
// the batch are left untouched.
func (s *Store) Apply(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if !e.Foldable() {
			continue
		}
		s.states[foldKey(e.Value)] = e.Permission.State()
	}
}

// ApplyProof records proof-derived consent for peer.
//
// It reports whether the state changed. A proof can never produce denial and
// never overrides an explicit entry, so this is a no-op unless the peer is
// currently StateUnknown.
func (s *Store) ApplyProof(peer string) bool {
	key := foldKey(peer)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[key]; ok {
		return false
	}
	s.states[key] = StateAllowed
	return true
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Len returns the number of peers with explicit or proof-derived state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
