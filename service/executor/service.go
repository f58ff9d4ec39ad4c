package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/policy"
	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/session"
	"github.com/stepflow/stepflow/tracing"
)

// Dispatcher invokes a bound operation. It must be safe for concurrent use
// across distinct invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error)
}

// Config represents step executor configuration.
type Config struct {
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `json:"backoffBase,omitempty" yaml:"backoffBase,omitempty"`
	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration `json:"backoffCap,omitempty" yaml:"backoffCap,omitempty"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		BackoffBase: time.Second,
		BackoffCap:  10 * time.Second,
	}
}

// Option customises the executor instance.
type Option func(*Service)

// WithConfig overrides the retry/backoff configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// Service executes individual workflow steps.
type Service struct {
	config     Config
	dispatcher Dispatcher
	sessions   session.Service
	reporter   *progress.Reporter
}

// NewService creates a step executor.
func NewService(dispatcher Dispatcher, sessions session.Service, reporter *progress.Reporter, opts ...Option) *Service {
	s := &Service{
		config:     DefaultConfig(),
		dispatcher: dispatcher,
		sessions:   sessions,
		reporter:   reporter,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Execute runs one step and records its outcome in result. The returned
// error is non-nil only for workflow-level faults: a fail-policy step
// re-raising, an aborted run or an internal fault. Failures resolved by the
// skip/continue policies never propagate.
func (s *Service) Execute(ctx context.Context, step *model.WorkflowStep, result *execution.Result, params map[string]interface{}, token *execution.CancelToken) error {
	sessionID := result.SessionID

	state, err := s.sessions.GetState(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read session %v state: %w", sessionID, err)
	}
	if step.Condition != nil && !step.Condition(state) {
		result.RecordSkipped(step.Name)
		return nil
	}

	if err = s.sessions.SetCurrentStep(ctx, sessionID, step.Name); err != nil {
		return fmt.Errorf("failed to set current step for session %v: %w", sessionID, err)
	}
	s.emit(sessionID, step.Name, progress.StatusStarting, result.Fraction(), fmt.Sprintf("starting %v", step.Name), nil)

	stepParams := s.stepParams(step, sessionID, params, state)

	ctx, span := tracing.StartSpan(ctx, "step."+step.Name, "INTERNAL")
	lastErr := s.attempt(ctx, step, stepParams, result, token)
	tracing.EndSpan(span, lastErr)
	if lastErr == nil {
		return nil
	}
	if errors.Is(lastErr, ErrAborted) {
		result.RecordFailed(step.Name, lastErr)
		s.emit(sessionID, step.Name, progress.StatusFailed, result.Fraction(), fmt.Sprintf("%v aborted", step.Name), nil)
		return lastErr
	}

	result.RecordFailed(step.Name, lastErr)
	s.emit(sessionID, step.Name, progress.StatusFailed, result.Fraction(), fmt.Sprintf("%v failed: %v", step.Name, lastErr), nil)

	switch step.Policy() {
	case model.ErrorPolicyFail:
		return fmt.Errorf("step %q failed: %w", step.Name, lastErr)
	case model.ErrorPolicySkip:
		result.RecordSkipped(step.Name)
		return nil
	case model.ErrorPolicyContinue:
		return nil
	default:
		return fmt.Errorf("step %q: unknown error policy %q", step.Name, string(step.OnError))
	}
}

// attempt drives the retry loop; it returns nil once an attempt succeeds and
// the last error once the budget is exhausted.
func (s *Service) attempt(ctx context.Context, step *model.WorkflowStep, stepParams map[string]interface{}, result *execution.Result, token *execution.CancelToken) error {
	sessionID := result.SessionID

	if err := s.gate(ctx, step.Operation, stepParams); err != nil {
		// Policy rejections are deliberate, not transient - no retry.
		if sessionErr := s.sessions.AddStepError(ctx, sessionID, step.Name, err); sessionErr != nil {
			log.Printf("failed to record step error for session %v: %v", sessionID, sessionErr)
		}
		return err
	}

	maxAttempts := step.MaxAttempts()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if token != nil && token.IsCancelled() {
			return ErrAborted
		}

		output, err := s.invoke(ctx, step, stepParams, token)
		if err == nil {
			if err = s.sessions.UpdateState(ctx, sessionID, map[string]interface{}{step.Name + "_result": output}); err != nil {
				return fmt.Errorf("failed to update session %v state: %w", sessionID, err)
			}
			if err = s.sessions.MarkStepCompleted(ctx, sessionID, step.Name); err != nil {
				log.Printf("failed to mark step %v completed for session %v: %v", step.Name, sessionID, err)
			}
			result.RecordCompleted(step.Name, output)
			s.emit(sessionID, step.Name, progress.StatusCompleted, result.Fraction(), fmt.Sprintf("%v completed", step.Name), nil)
			return nil
		}
		if errors.Is(err, ErrAborted) {
			return err
		}

		lastErr = err
		if sessionErr := s.sessions.AddStepError(ctx, sessionID, step.Name, err); sessionErr != nil {
			log.Printf("failed to record step error for session %v: %v", sessionID, sessionErr)
		}
		if attempt+1 >= maxAttempts {
			break
		}

		delay := s.backoff(attempt)
		s.emit(sessionID, step.Name, progress.StatusInProgress, result.Fraction(),
			fmt.Sprintf("retrying %v after %v", step.Name, delay),
			map[string]interface{}{"attempt": attempt + 1, "delay": delay.String()})
		if err = s.wait(ctx, delay, token); err != nil {
			return err
		}
	}
	return lastErr
}

// invoke races the operation against the per-step timeout and the run's
// cancellation signal. The dispatch goroutine keeps running after a timeout;
// termination stays cooperative via the context it received.
func (s *Service) invoke(ctx context.Context, step *model.WorkflowStep, stepParams map[string]interface{}, token *execution.CancelToken) (interface{}, error) {
	invokeCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type outcome struct {
		output interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := s.dispatcher.Dispatch(invokeCtx, step.Operation, stepParams)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-invokeCtx.Done():
		if step.Timeout > 0 && errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("step %q: %w after %v", step.Name, ErrStepTimeout, step.Timeout)
		}
		return nil, invokeCtx.Err()
	case <-tokenDone(token):
		return nil, ErrAborted
	}
}

// wait sleeps for the backoff delay unless the run is cancelled first.
func (s *Service) wait(ctx context.Context, delay time.Duration, token *execution.CancelToken) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-tokenDone(token):
		return ErrAborted
	}
}

// backoff returns the delay before the given retry: base doubling per
// attempt, capped.
func (s *Service) backoff(attempt int) time.Duration {
	delay := s.config.BackoffBase << uint(attempt)
	if delay <= 0 || delay > s.config.BackoffCap {
		delay = s.config.BackoffCap
	}
	return delay
}

// gate applies the optional execution policy attached to the context.
func (s *Service) gate(ctx context.Context, operation string, params map[string]interface{}) error {
	p := policy.FromContext(ctx)
	if p == nil {
		return nil
	}
	if !p.IsAllowed(operation) {
		return fmt.Errorf("operation %q blocked by policy", operation)
	}
	switch strings.ToLower(p.Mode) {
	case policy.ModeDeny:
		return fmt.Errorf("operation %q denied by policy", operation)
	case policy.ModeAsk:
		if p.Ask == nil || !p.Ask(ctx, operation, params, p) {
			return fmt.Errorf("operation %q rejected by approver", operation)
		}
	}
	return nil
}

// stepParams computes the parameters for the bound operation, defaulting to
// the workflow parameters extended with session_id.
func (s *Service) stepParams(step *model.WorkflowStep, sessionID string, params, state map[string]interface{}) map[string]interface{} {
	if step.MapParams != nil {
		return step.MapParams(params, state)
	}
	merged := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["session_id"] = sessionID
	return merged
}

// emit publishes a progress update; reporter faults never propagate into
// step execution.
func (s *Service) emit(sessionID, step string, status progress.Status, fraction float64, message string, metadata map[string]interface{}) {
	if s.reporter == nil {
		return
	}
	update := progress.Update{
		SessionID: sessionID,
		Step:      step,
		Status:    status,
		Progress:  fraction,
		Message:   message,
		Metadata:  metadata,
	}
	if err := s.reporter.Publish(update); err != nil {
		log.Printf("failed to publish progress update: %v", err)
	}
}

func tokenDone(token *execution.CancelToken) <-chan struct{} {
	if token == nil {
		return nil
	}
	return token.Done()
}
