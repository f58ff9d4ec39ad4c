package memory

import (
	"context"
	"sync"

	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/service/dao"
)

// Service implements an in-memory archive of settled execution results. All
// operations are thread-safe and return copies of the underlying objects to
// prevent data races when callers mutate the returned instances.
type Service struct {
	results map[string]*execution.Result
	mux     sync.RWMutex
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, execution.Result] = (*Service)(nil)

// Save persists (a clone of) the supplied result, keyed by instance id.
func (s *Service) Save(_ context.Context, result *execution.Result) error {
	if result == nil {
		return dao.ErrNilEntity
	}
	if result.InstanceID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.results[result.InstanceID] = result.Clone()
	return nil
}

// Load retrieves a copy of the result or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*execution.Result, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	result, ok := s.results[id]
	s.mux.RUnlock()
	if !ok {
		return nil, dao.ErrNotFound
	}
	return result.Clone(), nil
}

// Delete removes a result.
func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.results[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.results, id)
	return nil
}

// List returns copies of all archived results. Parameter filtering is not
// implemented for the in-memory store.
func (s *Service) List(_ context.Context, _ ...*dao.Parameter) ([]*execution.Result, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	out := make([]*execution.Result, 0, len(s.results))
	for _, result := range s.results {
		out = append(out, result.Clone())
	}
	return out, nil
}

// New constructor.
func New() *Service {
	return &Service{results: map[string]*execution.Result{}}
}
