package execution

import (
	"context"
	"sync"
)

// Future is the settlement handle of one in-flight workflow run. The run that
// owns it settles it exactly once; any number of observers may wait on Done.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Settle records the outcome. Subsequent calls are no-ops.
func (f *Future) Settle(result *Result, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed on settlement.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has been settled.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Outcome returns the settled result and error. It must only be called after
// Done is closed; before settlement it returns (nil, nil).
func (f *Future) Outcome() (*Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
		return nil, nil
	}
}

// Wait blocks until settlement or context expiry.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
