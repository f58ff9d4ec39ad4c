package model

import (
	"fmt"
	"time"
)

// ErrorPolicy decides how a step failure escalates once the retry budget is
// exhausted.
type ErrorPolicy string

const (
	// ErrorPolicyFail aborts the workflow and triggers rollback.
	ErrorPolicyFail ErrorPolicy = "fail"
	// ErrorPolicySkip records the step as both failed and skipped; the
	// workflow may still stop if the group continuation rule applies.
	ErrorPolicySkip ErrorPolicy = "skip"
	// ErrorPolicyContinue records the failure only.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Validate returns an error for unknown policies. The empty policy is valid
// and treated as ErrorPolicyFail.
func (p ErrorPolicy) Validate() error {
	switch p {
	case "", ErrorPolicyFail, ErrorPolicySkip, ErrorPolicyContinue:
		return nil
	}
	return fmt.Errorf("unknown error policy %q", string(p))
}

// Predicate gates step execution against the current session state. A false
// result records the step as skipped without consuming retry budget.
type Predicate func(state map[string]interface{}) bool

// ParamMapper computes the parameters passed to the bound operation. When nil
// the engine passes the workflow parameters extended with session_id.
type ParamMapper func(params, state map[string]interface{}) map[string]interface{}

// WorkflowStep is a named unit of work bound to one operation, with its own
// retry, timeout and escalation policy.
type WorkflowStep struct {
	Name        string        `json:"name" yaml:"name"`
	Operation   string        `json:"operation" yaml:"operation"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Retryable   bool          `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	MaxRetries  int           `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OnError     ErrorPolicy   `json:"onError,omitempty" yaml:"onError,omitempty"`

	// Condition and MapParams are code-level hooks and therefore not part of
	// the serialisable definition.
	Condition Predicate   `json:"-" yaml:"-"`
	MapParams ParamMapper `json:"-" yaml:"-"`
}

// Policy returns the effective error policy, defaulting to fail.
func (s *WorkflowStep) Policy() ErrorPolicy {
	if s.OnError == "" {
		return ErrorPolicyFail
	}
	return s.OnError
}

// MaxAttempts returns the total invocation budget: the first attempt plus
// MaxRetries retries when the step is retryable.
func (s *WorkflowStep) MaxAttempts() int {
	if !s.Retryable || s.MaxRetries < 0 {
		return 1
	}
	return s.MaxRetries + 1
}

// Validate checks the step definition in isolation.
func (s *WorkflowStep) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step name is required")
	}
	if s.Operation == "" {
		return fmt.Errorf("step %q: operation is required", s.Name)
	}
	if err := s.OnError.Validate(); err != nil {
		return fmt.Errorf("step %q: %w", s.Name, err)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("step %q: maxRetries must not be negative", s.Name)
	}
	return nil
}
