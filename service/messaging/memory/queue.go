package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/internal/idgen"
	"github.com/stepflow/stepflow/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	createdAt  time.Time
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Nack indicates a failure in processing the message. The message is requeued
// after the retry delay while the retry budget lasts, then moved to the dead
// letter queue when one is enabled.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.retryCount++

	if m.retryCount <= m.queue.config.MaxRetries {
		go func() {
			time.Sleep(m.queue.config.RetryDelay)
			requeued := &Message[T]{
				id:         m.id,
				payload:    m.payload,
				queue:      m.queue,
				retryCount: m.retryCount,
				createdAt:  clock.Now(),
			}
			select {
			case m.queue.messages <- requeued:
			default:
				m.queue.deadLetter(requeued)
			}
		}()
		return nil
	}
	m.queue.deadLetter(m)
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages chan *Message[T]
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a new item to the queue, blocking while the buffer is full.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	select {
	case q.messages <- q.newMessage(t):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a new item without blocking. It reports whether the item
// was enqueued; a full buffer drops the item.
func (q *Queue[T]) TryPublish(t *T) bool {
	select {
	case q.messages <- q.newMessage(t):
		return true
	default:
		return false
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

func (q *Queue[T]) newMessage(t *T) *Message[T] {
	return &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: clock.Now(),
	}
}

func (q *Queue[T]) deadLetter(m *Message[T]) {
	if !q.config.DeadLetter {
		return
	}
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, m)
	q.dlqMu.Unlock()
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
