package progress

import (
	"fmt"
	"time"
)

// Status is the step-level progress phase.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Validate returns an error for unknown statuses.
func (s Status) Validate() error {
	switch s {
	case StatusStarting, StatusInProgress, StatusCompleted, StatusFailed:
		return nil
	}
	return fmt.Errorf("unknown progress status %q", string(s))
}

// Update is one step-level progress event. Produced only by the step
// executor; not retained by the orchestrator.
type Update struct {
	SessionID string                 `json:"sessionId"`
	Step      string                 `json:"step"`
	Status    Status                 `json:"status"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Filter selects updates by session, step and/or status; zero fields match
// everything.
type Filter struct {
	SessionID string
	Step      string
	Status    Status
}

func (f *Filter) matches(u *Update) bool {
	if f.SessionID != "" && f.SessionID != u.SessionID {
		return false
	}
	if f.Step != "" && f.Step != u.Step {
		return false
	}
	if f.Status != "" && f.Status != u.Status {
		return false
	}
	return true
}
