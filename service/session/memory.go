package session

import (
	"context"
	"errors"
	"sync"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/service/dao"
	"github.com/stepflow/stepflow/service/dao/store"
)

// Memory is the in-memory session store.
type Memory struct {
	store *store.MemoryStore[string, State]
	mu    sync.Mutex
}

var _ Service = (*Memory)(nil)

// NewMemory creates an in-memory session store.
func NewMemory() *Memory {
	return &Memory{
		store: store.NewMemoryStore[string, State](func(s *State) string { return s.SessionID }),
	}
}

// GetState returns a copy of the session's values.
func (m *Memory) GetState(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(state.Values))
	for k, v := range state.Values {
		values[k] = v
	}
	return values, nil
}

// Lookup returns a copy of the full session record, or false for an unknown
// session.
func (m *Memory) Lookup(ctx context.Context, sessionID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, false
	}
	clone := *state
	clone.CompletedSteps = append([]string(nil), state.CompletedSteps...)
	clone.Errors = append([]StepError(nil), state.Errors...)
	clone.Values = make(map[string]interface{}, len(state.Values))
	for k, v := range state.Values {
		clone.Values[k] = v
	}
	return &clone, true
}

// UpdateState merges partial into the session values.
func (m *Memory) UpdateState(ctx context.Context, sessionID string, partial map[string]interface{}) error {
	return m.modify(ctx, sessionID, func(state *State) {
		for k, v := range partial {
			state.Values[k] = v
		}
	})
}

// SetCurrentStep records the step the session is currently executing.
func (m *Memory) SetCurrentStep(ctx context.Context, sessionID, step string) error {
	return m.modify(ctx, sessionID, func(state *State) {
		state.CurrentStep = step
	})
}

// MarkStepCompleted appends the step to the session's completed list.
func (m *Memory) MarkStepCompleted(ctx context.Context, sessionID, step string) error {
	return m.modify(ctx, sessionID, func(state *State) {
		state.CompletedSteps = append(state.CompletedSteps, step)
	})
}

// AddStepError records a step failure against the session.
func (m *Memory) AddStepError(ctx context.Context, sessionID, step string, stepErr error) error {
	message := ""
	if stepErr != nil {
		message = stepErr.Error()
	}
	return m.modify(ctx, sessionID, func(state *State) {
		state.Errors = append(state.Errors, StepError{Step: step, Error: message, OccurredAt: clock.Now()})
	})
}

func (m *Memory) modify(ctx context.Context, sessionID string, mutate func(*State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	mutate(state)
	state.UpdatedAt = clock.Now()
	return m.store.Save(ctx, state)
}

// load returns the stored state, creating it on first access.
func (m *Memory) load(ctx context.Context, sessionID string) (*State, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, dao.ErrNotFound) {
		return nil, err
	}
	state = &State{
		SessionID: sessionID,
		Values:    make(map[string]interface{}),
		UpdatedAt: clock.Now(),
	}
	if err = m.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
