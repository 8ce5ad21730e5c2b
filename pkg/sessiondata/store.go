// Package sessiondata mirrors the per-skill session properties pushed by the
// core over the presentation channel. Each skill owns a Bag of dynamically
// typed values; bags are created on first reference and dropped when the
// skill leaves the active-skill list.
package sessiondata

import (
	"sort"
	"sync"
)

// Store maps skill identifiers to property bags. It is safe for concurrent
// use. The zero value is ready to use.
type Store struct {
	mu   sync.RWMutex
	bags map[string]*Bag
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{bags: make(map[string]*Bag)}
}

// GetOrCreate returns the bag for skillID, inserting an empty one when absent.
// It is the only operation that creates bags.
func (s *Store) GetOrCreate(skillID string) *Bag {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bags == nil {
		s.bags = make(map[string]*Bag)
	}

	bag, ok := s.bags[skillID]
	if !ok {
		bag = &Bag{}
		s.bags[skillID] = bag
	}

	return bag
}

// Lookup returns the bag for skillID without creating it.
func (s *Store) Lookup(skillID string) (*Bag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bag, ok := s.bags[skillID]
	return bag, ok
}

// Upsert sets key to value in the bag of skillID, creating the bag if needed.
func (s *Store) Upsert(skillID, key string, value Value) {
	s.GetOrCreate(skillID).Set(key, value)
}

// Delete removes key from the bag of skillID. It reports false when either the
// bag or the key does not exist; the store is left unchanged in that case.
func (s *Store) Delete(skillID, key string) bool {
	bag, ok := s.Lookup(skillID)
	if !ok {
		return false
	}
	return bag.Delete(key)
}

// Drop removes the whole bag of skillID. A later GetOrCreate starts empty.
func (s *Store) Drop(skillID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bags, skillID)
}

// Skills returns the sorted identifiers of all skills that own a bag.
func (s *Store) Skills() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.bags))
	for id := range s.bags {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Reset drops every bag.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bags = make(map[string]*Bag)
}
