package store

import (
	"context"
	"sync"

	"github.com/stepflow/stepflow/service/dao"
)

// MemoryStore is a generic in-memory implementation of dao.Service keeping
// entities of type *T mapped by a comparable key K obtained from the supplied
// keySelector. Concrete DAOs embed the store so that Save/Load/Delete/List
// logic is written once; higher-level DAOs override List when they need
// filtering beyond the optional matcher.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	matcher     func(*T, []*dao.Parameter) bool
}

// NewMemoryStore creates a new MemoryStore. keySelector extracts the entity
// key (usually the ID field) from a value.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
	}
}

// WithMatcher installs a predicate applied by List when parameters are
// supplied.
func (s *MemoryStore[K, T]) WithMatcher(matcher func(*T, []*dao.Parameter) bool) *MemoryStore[K, T] {
	s.matcher = matcher
	return s
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = v
	return nil
}

// Load returns a record by key or dao.ErrNotFound.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return v, nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns stored records, filtered by the matcher when parameters are
// supplied.
func (s *MemoryStore[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if len(parameters) > 0 && s.matcher != nil && !s.matcher(v, parameters) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
