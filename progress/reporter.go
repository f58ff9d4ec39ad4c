package progress

import (
	"context"
	"fmt"
	"log"
	"time"

	"sync"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/internal/idgen"
	"github.com/stepflow/stepflow/service/messaging/memory"
)

// Listener observes every published update. Listeners run concurrently with
// per-listener failure isolation.
type Listener func(Update)

// Config controls reporter buffering and history retention.
type Config struct {
	// QueueBuffer is the per-subscription buffer; a full buffer drops updates
	// for that subscriber only.
	QueueBuffer int `json:"queueBuffer,omitempty" yaml:"queueBuffer,omitempty"`
	// HistoryLimit bounds the per-session history; zero disables history.
	HistoryLimit int `json:"historyLimit,omitempty" yaml:"historyLimit,omitempty"`
	// IdleTTL is how long an inactive session's history is retained.
	IdleTTL time.Duration `json:"idleTTL,omitempty" yaml:"idleTTL,omitempty"`
	// SweepInterval is how often idle session histories are evicted.
	SweepInterval time.Duration `json:"sweepInterval,omitempty" yaml:"sweepInterval,omitempty"`
}

// DefaultConfig returns the default reporter configuration.
func DefaultConfig() Config {
	return Config{
		QueueBuffer:   100,
		HistoryLimit:  50,
		IdleTTL:       time.Hour,
		SweepInterval: time.Minute,
	}
}

// Subscription is a typed update feed. Consumers call Receive until Close.
type Subscription struct {
	id       string
	filter   Filter
	queue    *memory.Queue[Update]
	reporter *Reporter
}

// Receive blocks until the next matching update or context expiry.
func (s *Subscription) Receive(ctx context.Context) (*Update, error) {
	msg, err := s.queue.Consume(ctx)
	if err != nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}

// Close unsubscribes the feed. Pending buffered updates are discarded.
func (s *Subscription) Close() {
	s.reporter.unsubscribe(s.id)
}

// Reporter fans progress updates out to subscriptions and listeners and keeps
// optional bounded per-session history.
type Reporter struct {
	config Config

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	listeners     map[string]Listener
	history       map[string][]Update
	lastActive    map[string]time.Time

	shutdownCh chan struct{}
	once       sync.Once
}

// New creates a reporter.
func New(config Config) *Reporter {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Reporter{
		config:        config,
		subscriptions: make(map[string]*Subscription),
		listeners:     make(map[string]Listener),
		history:       make(map[string][]Update),
		lastActive:    make(map[string]time.Time),
		shutdownCh:    make(chan struct{}),
	}
}

// Publish validates, defaults and distributes one update. Session id, step
// and status are required; a zero timestamp defaults to now and progress is
// clamped into [0,1].
func (r *Reporter) Publish(update Update) error {
	if update.SessionID == "" {
		return fmt.Errorf("progress update missing session id")
	}
	if update.Step == "" {
		return fmt.Errorf("progress update missing step")
	}
	if update.Status == "" {
		return fmt.Errorf("progress update missing status")
	}
	if err := update.Status.Validate(); err != nil {
		return err
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = clock.Now()
	}
	if update.Progress < 0 {
		update.Progress = 0
	} else if update.Progress > 1 {
		update.Progress = 1
	}

	r.mu.Lock()
	if r.config.HistoryLimit > 0 {
		entries := append(r.history[update.SessionID], update)
		if len(entries) > r.config.HistoryLimit {
			entries = entries[len(entries)-r.config.HistoryLimit:]
		}
		r.history[update.SessionID] = entries
		r.lastActive[update.SessionID] = update.Timestamp
	}
	subscriptions := make([]*Subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	listeners := make([]Listener, 0, len(r.listeners))
	for _, listener := range r.listeners {
		listeners = append(listeners, listener)
	}
	r.mu.Unlock()

	for _, sub := range subscriptions {
		if !sub.filter.matches(&update) {
			continue
		}
		if !sub.queue.TryPublish(&update) {
			log.Printf("progress subscriber %s full, dropping update for session %s step %s", sub.id, update.SessionID, update.Step)
		}
	}
	for _, listener := range listeners {
		go r.notify(listener, update)
	}
	return nil
}

// notify isolates listener faults so one listener cannot block or crash
// delivery to others.
func (r *Reporter) notify(listener Listener, update Update) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("progress listener panic: %v", recovered)
		}
	}()
	listener(update)
}

// Subscribe registers a typed update feed; close the returned subscription to
// unsubscribe.
func (r *Reporter) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:       idgen.New(),
		filter:   filter,
		queue:    memory.NewQueue[Update](memory.Config{QueueBuffer: r.config.QueueBuffer}),
		reporter: r,
	}
	r.mu.Lock()
	r.subscriptions[sub.id] = sub
	r.mu.Unlock()
	return sub
}

// OnUpdate registers a listener invoked for every update; the returned
// function unsubscribes it.
func (r *Reporter) OnUpdate(listener Listener) func() {
	id := idgen.New()
	r.mu.Lock()
	r.listeners[id] = listener
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// History returns the retained updates for a session, oldest first.
func (r *Reporter) History(sessionID string) []Update {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Update(nil), r.history[sessionID]...)
}

// Start runs the periodic eviction of idle session histories until the
// context is cancelled or Shutdown is called.
func (r *Reporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdownCh:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// Shutdown stops the sweep and drops all observers.
func (r *Reporter) Shutdown() {
	r.once.Do(func() {
		close(r.shutdownCh)
	})
	r.mu.Lock()
	r.subscriptions = make(map[string]*Subscription)
	r.listeners = make(map[string]Listener)
	r.mu.Unlock()
}

func (r *Reporter) evictIdle() {
	cutoff := clock.Now().Add(-r.config.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID, last := range r.lastActive {
		if last.Before(cutoff) {
			delete(r.history, sessionID)
			delete(r.lastActive, sessionID)
		}
	}
}

func (r *Reporter) unsubscribe(id string) {
	r.mu.Lock()
	delete(r.subscriptions, id)
	r.mu.Unlock()
}
