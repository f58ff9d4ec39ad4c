// Package session defines the session-state accessor the engine performs
// read-modify-write against, scoped to one session id, plus an in-memory
// implementation. Persistent session storage is a host concern; hosts supply
// their own implementation of Service.
package session

import (
	"context"
	"time"
)

// StepError records one step failure against a session.
type StepError struct {
	Step       string    `json:"step"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurredAt"`
}

// State is the per-session workflow state.
type State struct {
	SessionID      string                 `json:"sessionId"`
	CurrentStep    string                 `json:"currentStep,omitempty"`
	CompletedSteps []string               `json:"completedSteps,omitempty"`
	Errors         []StepError            `json:"errors,omitempty"`
	Values         map[string]interface{} `json:"values,omitempty"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// Service is the session state accessor consumed by the step executor.
// Updates for a given session id are produced only by that session's own run;
// implementations must still support safe concurrent access across different
// session ids.
type Service interface {
	// GetState returns a copy of the session's value map; an unknown session
	// yields an empty map.
	GetState(ctx context.Context, sessionID string) (map[string]interface{}, error)

	// UpdateState merges the partial map into the session's values.
	UpdateState(ctx context.Context, sessionID string, partial map[string]interface{}) error

	SetCurrentStep(ctx context.Context, sessionID, step string) error

	MarkStepCompleted(ctx context.Context, sessionID, step string) error

	AddStepError(ctx context.Context, sessionID, step string, stepErr error) error
}
