package stepflow

import (
	"context"
	"fmt"
	"time"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/dao/workflow"
	"github.com/stepflow/stepflow/service/orchestrator"
	"github.com/stepflow/stepflow/service/registry"
	"github.com/stepflow/stepflow/service/session"
)

// Runtime represents the workflow engine runtime.
type Runtime struct {
	orchestrator *orchestrator.Service
	registry     *registry.Service
	reporter     *progress.Reporter
	workflowDAO  *workflow.Service
	sessions     session.Service
}

// Start launches the background lifecycles: the registry history sweep and
// the reporter's idle-session eviction.
func (r *Runtime) Start(ctx context.Context) error {
	r.registry.Start(ctx)
	go r.reporter.Start(ctx)
	return nil
}

// Shutdown fires cancellation on every active run and stops the background
// lifecycles. It does not await settlement.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.registry.Shutdown()
	r.reporter.Shutdown()
	return nil
}

// ExecuteWorkflow runs the workflow to settlement, registering the run so it
// is visible to status queries while in flight. The error is non-nil only
// for workflow-level faults.
func (r *Runtime) ExecuteWorkflow(ctx context.Context, config *model.WorkflowConfig, sessionID string, params map[string]interface{}) (*execution.Result, error) {
	run, err := r.StartWorkflow(ctx, config, sessionID, params)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

// StartWorkflow launches the workflow asynchronously and registers the run.
func (r *Runtime) StartWorkflow(ctx context.Context, config *model.WorkflowConfig, sessionID string, params map[string]interface{}) (*orchestrator.Run, error) {
	run, err := r.orchestrator.Start(ctx, config, sessionID, params)
	if err != nil {
		return nil, err
	}
	r.registry.Register(run.SessionID, run.InstanceID, run.WorkflowID, run.Future(), run.Token())
	return run, nil
}

// AbortWorkflow requests cooperative cancellation of the session's active
// run. It returns true exactly once while running, false thereafter.
func (r *Runtime) AbortWorkflow(sessionID string) bool {
	return r.registry.Abort(sessionID)
}

// GetWorkflow returns the active registry record for the session, or nil.
func (r *Runtime) GetWorkflow(sessionID string) *registry.Execution {
	return r.registry.Get(sessionID)
}

// GetActiveWorkflows returns all in-flight registry records.
func (r *Runtime) GetActiveWorkflows() []*registry.Execution {
	return r.registry.Active()
}

// ListWorkflows returns active and settled records matching the filter,
// sorted by start time descending.
func (r *Runtime) ListWorkflows(filter registry.Filter) []*registry.Execution {
	return r.registry.List(filter)
}

// GetMetrics aggregates counts, average duration and success rate across
// runs.
func (r *Runtime) GetMetrics() registry.Metrics {
	return r.registry.Metrics()
}

// GetStatusSummary derives the coarse operational snapshot.
func (r *Runtime) GetStatusSummary() registry.StatusSummary {
	return r.registry.StatusSummary()
}

// GetWorkflowDuration reports the elapsed time of the session's run.
func (r *Runtime) GetWorkflowDuration(sessionID string) (time.Duration, bool) {
	return r.registry.Duration(sessionID)
}

// IsWorkflowRunning reports whether the session has an active run.
func (r *Runtime) IsWorkflowRunning(sessionID string) bool {
	return r.registry.IsRunning(sessionID)
}

// Reporter exposes the progress reporter for subscriptions and listeners.
func (r *Runtime) Reporter() *progress.Reporter {
	return r.reporter
}

// SessionState returns the session's current state map.
func (r *Runtime) SessionState(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	return r.sessions.GetState(ctx, sessionID)
}

// LoadWorkflow loads a workflow definition via the configured meta service.
func (r *Runtime) LoadWorkflow(ctx context.Context, location string) (*model.WorkflowConfig, error) {
	return r.workflowDAO.Load(ctx, location)
}

// DecodeYAMLWorkflow decodes a workflow definition from YAML bytes.
func (r *Runtime) DecodeYAMLWorkflow(data []byte) (*model.WorkflowConfig, error) {
	return r.workflowDAO.DecodeYAML(data)
}

// RefreshWorkflow discards any cached copy of the workflow definition stored
// under the given location. The next LoadWorkflow call reloads it via the
// configured meta service.
func (r *Runtime) RefreshWorkflow(location string) error {
	if r == nil || r.workflowDAO == nil {
		return fmt.Errorf("runtime not fully initialised - workflowDAO missing")
	}
	r.workflowDAO.Refresh(location)
	return nil
}

// UpsertDefinition parses the supplied YAML bytes and stores the resulting
// workflow definition in the in-memory cache under the specified location.
// When data is nil the call falls back to RefreshWorkflow, causing a lazy
// reload on next use.
func (r *Runtime) UpsertDefinition(location string, data []byte) error {
	if r == nil || r.workflowDAO == nil {
		return fmt.Errorf("runtime not fully initialised - workflowDAO missing")
	}
	if data == nil {
		return r.RefreshWorkflow(location)
	}
	config, err := r.workflowDAO.DecodeYAML(data)
	if err != nil {
		return fmt.Errorf("failed to decode workflow YAML: %w", err)
	}
	r.workflowDAO.Upsert(location, config)
	return nil
}
