package executor

import "errors"

var (
	// ErrStepTimeout marks a step invocation that outlived its per-step
	// timeout. Timeouts are retry-eligible like any other step failure.
	ErrStepTimeout = errors.New("step timed out")

	// ErrAborted marks a run stopped by its cooperative cancellation signal.
	ErrAborted = errors.New("workflow aborted")
)
