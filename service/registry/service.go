package registry

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/model/execution"
)

// Status describes a registered run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Execution is a registry record for one workflow run. Records transition
// exactly once from running to a terminal status on settlement.
type Execution struct {
	SessionID  string
	InstanceID string
	WorkflowID string
	StartedAt  time.Time
	SettledAt  time.Time
	Status     Status
	Result     *execution.Result
	Err        error

	token  *execution.CancelToken
	future *execution.Future
}

func (e *Execution) snapshot() *Execution {
	clone := *e
	clone.token = nil
	clone.future = nil
	return &clone
}

// Archiver persists settled execution results.
type Archiver interface {
	Save(ctx context.Context, result *execution.Result) error
}

// Config controls history retention and sweep cadence.
type Config struct {
	// HistoryLimit bounds the settled-record ring.
	HistoryLimit int `json:"historyLimit,omitempty" yaml:"historyLimit,omitempty"`
	// MaxAge evicts settled records older than this during sweeps.
	MaxAge time.Duration `json:"maxAge,omitempty" yaml:"maxAge,omitempty"`
	// SweepInterval sets the cadence of the background sweep.
	SweepInterval time.Duration `json:"sweepInterval,omitempty" yaml:"sweepInterval,omitempty"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:  100,
		MaxAge:        24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

// Option customises the registry.
type Option func(*Service)

// WithArchiver directs settled results into the supplied store.
func WithArchiver(archiver Archiver) Option {
	return func(s *Service) { s.archiver = archiver }
}

// Service tracks all in-flight and recently settled workflow runs.
type Service struct {
	config   Config
	archiver Archiver

	mux     sync.RWMutex
	active  map[string]*Execution
	history []*Execution

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates a registry.
func New(config Config, opts ...Option) *Service {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultConfig().MaxAge
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	s := &Service{
		config:     config,
		active:     make(map[string]*Execution),
		shutdownCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register begins observing a run. Re-registering an active session
// overwrites the active entry; the superseded run is still archived when it
// settles.
func (s *Service) Register(sessionID, instanceID, workflowID string, future *execution.Future, token *execution.CancelToken) {
	record := &Execution{
		SessionID:  sessionID,
		InstanceID: instanceID,
		WorkflowID: workflowID,
		StartedAt:  clock.Now(),
		Status:     StatusRunning,
		token:      token,
		future:     future,
	}
	s.mux.Lock()
	s.active[sessionID] = record
	s.mux.Unlock()

	go s.observe(record)
}

// observe waits for settlement or shutdown.
func (s *Service) observe(record *Execution) {
	if record.future == nil {
		return
	}
	select {
	case <-record.future.Done():
		s.settle(record)
	case <-s.shutdownCh:
	}
}

// settle classifies the outcome, moves the record into history and feeds the
// optional archiver.
func (s *Service) settle(record *Execution) {
	result, err := record.future.Outcome()

	s.mux.Lock()
	record.SettledAt = clock.Now()
	record.Result = result
	record.Err = err
	switch {
	case err == nil:
		record.Status = StatusCompleted
	case record.token != nil && record.token.IsCancelled():
		record.Status = StatusAborted
	default:
		record.Status = StatusFailed
	}
	if current, ok := s.active[record.SessionID]; ok && current == record {
		delete(s.active, record.SessionID)
	}
	s.history = append(s.history, record)
	if overflow := len(s.history) - s.config.HistoryLimit; overflow > 0 {
		s.history = append([]*Execution(nil), s.history[overflow:]...)
	}
	s.mux.Unlock()

	if s.archiver != nil && result != nil {
		if archiveErr := s.archiver.Save(context.Background(), result); archiveErr != nil {
			log.Printf("failed to archive execution %v: %v", record.InstanceID, archiveErr)
		}
	}
}

// Get returns the active record for the session, or nil when none is
// running.
func (s *Service) Get(sessionID string) *Execution {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if record, ok := s.active[sessionID]; ok {
		return record.snapshot()
	}
	return nil
}

// Active returns all in-flight records.
func (s *Service) Active() []*Execution {
	s.mux.RLock()
	defer s.mux.RUnlock()
	result := make([]*Execution, 0, len(s.active))
	for _, record := range s.active {
		result = append(result, record.snapshot())
	}
	return result
}

// Filter narrows List results.
type Filter struct {
	Status     Status
	WorkflowID string
	Since      time.Time
	Limit      int
}

func (f *Filter) matches(record *Execution) bool {
	if f.Status != "" && record.Status != f.Status {
		return false
	}
	if f.WorkflowID != "" && record.WorkflowID != f.WorkflowID {
		return false
	}
	if !f.Since.IsZero() && record.StartedAt.Before(f.Since) {
		return false
	}
	return true
}

// List returns active and settled records matching the filter, sorted by
// start time descending.
func (s *Service) List(filter Filter) []*Execution {
	s.mux.RLock()
	matched := make([]*Execution, 0, len(s.active)+len(s.history))
	for _, record := range s.active {
		if filter.matches(record) {
			matched = append(matched, record.snapshot())
		}
	}
	for _, record := range s.history {
		if filter.matches(record) {
			matched = append(matched, record.snapshot())
		}
	}
	s.mux.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

// Abort fires the cancellation signal of an active running record. It
// returns true exactly once per run; subsequent calls and calls for unknown
// or settled sessions return false.
func (s *Service) Abort(sessionID string) bool {
	s.mux.Lock()
	record, ok := s.active[sessionID]
	if !ok || record.Status != StatusRunning {
		s.mux.Unlock()
		return false
	}
	record.Status = StatusAborted
	token := record.token
	s.mux.Unlock()

	if token != nil {
		token.Cancel()
	}
	return true
}

// IsRunning reports whether the session has an active, unsettled run.
func (s *Service) IsRunning(sessionID string) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	record, ok := s.active[sessionID]
	return ok && record.Status == StatusRunning
}

// Duration returns the elapsed time of the session's run: time since start
// while active, settled duration from the most recent historical record
// otherwise.
func (s *Service) Duration(sessionID string) (time.Duration, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	if record, ok := s.active[sessionID]; ok {
		return clock.Since(record.StartedAt), true
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if record := s.history[i]; record.SessionID == sessionID {
			return record.SettledAt.Sub(record.StartedAt), true
		}
	}
	return 0, false
}

// Start launches the periodic history sweep.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-ctx.Done():
				return
			case <-s.shutdownCh:
				return
			}
		}
	}()
}

// sweep evicts settled records older than MaxAge.
func (s *Service) sweep() {
	cutoff := clock.Now().Add(-s.config.MaxAge)
	s.mux.Lock()
	defer s.mux.Unlock()
	kept := s.history[:0]
	for _, record := range s.history {
		if record.SettledAt.After(cutoff) {
			kept = append(kept, record)
		}
	}
	s.history = kept
}

// Shutdown fires cancellation on every active record, stops the sweep and
// releases all settlement observers. It does not await settlement.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, record := range s.active {
		if record.token != nil {
			record.token.Cancel()
		}
	}
}
