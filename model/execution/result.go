package execution

import (
	"sync"
	"time"
)

// Status is the terminal status of one workflow run.
type Status string

const (
	// StatusCompleted - no step failed.
	StatusCompleted Status = "completed"
	// StatusFailed - at least one step failed and none completed.
	StatusFailed Status = "failed"
	// StatusPartial - mixed outcome.
	StatusPartial Status = "partial"
)

// StepError pairs a step name with the last error it produced.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// Result aggregates the outcome of one workflow instance. It is built
// exclusively by the run that owns it; steps of a parallel group record their
// outcomes concurrently, hence the internal lock.
type Result struct {
	InstanceID     string                 `json:"instanceId"`
	SessionID      string                 `json:"sessionId"`
	Status         Status                 `json:"status"`
	CompletedSteps []string               `json:"completedSteps"`
	FailedSteps    []string               `json:"failedSteps"`
	SkippedSteps   []string               `json:"skippedSteps"`
	StartedAt      time.Time              `json:"startedAt"`
	Elapsed        time.Duration          `json:"elapsed"`
	Errors         []StepError            `json:"errors,omitempty"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`

	mu sync.Mutex
}

// NewResult creates an empty result for the given run.
func NewResult(instanceID, sessionID string, startedAt time.Time) *Result {
	return &Result{
		InstanceID: instanceID,
		SessionID:  sessionID,
		StartedAt:  startedAt,
		Outputs:    make(map[string]interface{}),
	}
}

// RecordCompleted marks a step as completed and stores its output.
func (r *Result) RecordCompleted(step string, output interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CompletedSteps = append(r.CompletedSteps, step)
	if output != nil {
		r.Outputs[step] = output
	}
}

// RecordFailed marks a step as failed with its last error.
func (r *Result) RecordFailed(step string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailedSteps = append(r.FailedSteps, step)
	if err != nil {
		r.Errors = append(r.Errors, StepError{Step: step, Error: err.Error()})
	}
}

// RecordSkipped marks a step as skipped. A step may appear in both the failed
// and skipped sets when its error policy is skip.
func (r *Result) RecordSkipped(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SkippedSteps = append(r.SkippedSteps, step)
}

// Counts returns the completed/failed/skipped step counts.
func (r *Result) Counts() (completed, failed, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.CompletedSteps), len(r.FailedSteps), len(r.SkippedSteps)
}

// FailureCount returns the number of failed steps recorded so far.
func (r *Result) FailureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.FailedSteps)
}

// Fraction reports run progress as completed/(completed+failed+skipped+1).
// The +1 accounts for the step currently in flight so that the fraction only
// reaches 1.0 with the explicit final update.
func (r *Result) Fraction() float64 {
	completed, failed, skipped := r.Counts()
	return float64(completed) / float64(completed+failed+skipped+1)
}

// Finalize computes the elapsed duration and derives the terminal status:
// completed when no step failed, failed when no step completed and at least
// one failed, partial otherwise.
func (r *Result) Finalize(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Elapsed = now.Sub(r.StartedAt)
	switch {
	case len(r.FailedSteps) == 0:
		r.Status = StatusCompleted
	case len(r.CompletedSteps) == 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
}

// Clone returns a deep copy safe for callers to retain.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := &Result{
		InstanceID: r.InstanceID,
		SessionID:  r.SessionID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		Elapsed:    r.Elapsed,
	}
	clone.CompletedSteps = append([]string(nil), r.CompletedSteps...)
	clone.FailedSteps = append([]string(nil), r.FailedSteps...)
	clone.SkippedSteps = append([]string(nil), r.SkippedSteps...)
	clone.Errors = append([]StepError(nil), r.Errors...)
	clone.Outputs = make(map[string]interface{}, len(r.Outputs))
	for k, v := range r.Outputs {
		clone.Outputs[k] = v
	}
	return clone
}
