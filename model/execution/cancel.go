package execution

import "sync"

// CancelToken is the cooperative cancellation primitive shared by one
// workflow run, its registry record and its caller. Cancelling flips an
// advisory signal; in-flight operations are expected to observe it but are
// never terminated forcibly.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an unsignalled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel fires the signal. Idempotent.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		close(t.done)
	})
}

// Done returns a channel closed once the token is cancelled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// IsCancelled reports whether the signal has fired.
func (t *CancelToken) IsCancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
