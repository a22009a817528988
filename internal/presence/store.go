// Package presence holds the server-authoritative set of online user IDs.
// The set is replaced wholesale on each snapshot push; incremental add and
// remove exist for servers that send deltas. Membership is the only source
// of the live badge, last-seen timestamps are never consulted.
package presence

import "sync"

// Store is the process-wide online-user set. Only the socket layer mutates
// it; everything else reads.
type Store struct {
	mu     sync.RWMutex
	online map[string]struct{}

	subsMu sync.Mutex
	subs   []chan struct{}
}

func NewStore() *Store {
	return &Store{online: make(map[string]struct{})}
}

// ReplaceAll swaps the whole set for the server's canonical snapshot.
func (s *Store) ReplaceAll(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.mu.Lock()
	s.online = next
	s.mu.Unlock()
	s.notify()
}

// Add marks one user online. Idempotent.
func (s *Store) Add(id string) {
	s.mu.Lock()
	_, exists := s.online[id]
	if !exists {
		s.online[id] = struct{}{}
	}
	s.mu.Unlock()
	if !exists {
		s.notify()
	}
}

// Remove marks one user offline. A no-op for absent IDs.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, exists := s.online[id]
	if exists {
		delete(s.online, id)
	}
	s.mu.Unlock()
	if exists {
		s.notify()
	}
}

// IsOnline reports membership. O(1).
func (s *Store) IsOnline(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[id]
	return ok
}

// IDs returns a snapshot of the currently online user IDs.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of online users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.online)
}

// Clear empties the set, used on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	s.online = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

// Subscribe returns a channel that receives a signal after every membership
// change. The channel has a buffer of one; coalesced signals mean "something
// changed, re-read the set", so readers must not cache membership across
// signals.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
