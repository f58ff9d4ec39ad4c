package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/internal/idgen"
	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/tracing"
)

// finalStepName identifies the terminal progress update of a run; only this
// update carries progress 1.0.
const finalStepName = "workflow"

// Run is the handle for one in-flight workflow execution.
type Run struct {
	InstanceID string
	SessionID  string
	WorkflowID string
	StartedAt  time.Time

	future *execution.Future
	token  *execution.CancelToken
}

// Future exposes the settlement handle observed by the registry.
func (r *Run) Future() *execution.Future {
	return r.future
}

// Token exposes the run's cancellation token.
func (r *Run) Token() *execution.CancelToken {
	return r.token
}

// Abort requests cooperative cancellation; in-flight operations keep running
// until they observe the signal.
func (r *Run) Abort() {
	r.token.Cancel()
}

// Wait blocks until the run settles or ctx expires.
func (r *Run) Wait(ctx context.Context) (*execution.Result, error) {
	return r.future.Wait(ctx)
}

// Service coordinates workflow runs.
type Service struct {
	executor *executor.Service
	reporter *progress.Reporter
}

// New creates an orchestrator backed by the supplied step executor.
func New(exec *executor.Service, reporter *progress.Reporter) *Service {
	return &Service{executor: exec, reporter: reporter}
}

// Execute runs the workflow synchronously, returning the aggregated result.
// The error is non-nil only for workflow-level faults; skip/continue step
// failures surface through the result instead.
func (s *Service) Execute(ctx context.Context, config *model.WorkflowConfig, sessionID string, params map[string]interface{}) (*execution.Result, error) {
	run, err := s.Start(ctx, config, sessionID, params)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

// Start launches the workflow asynchronously and returns its run handle.
func (s *Service) Start(ctx context.Context, config *model.WorkflowConfig, sessionID string, params map[string]interface{}) (*Run, error) {
	if config == nil {
		return nil, errors.New("workflow config was nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %q: %w", config.ID, err)
	}
	if sessionID == "" {
		sessionID = idgen.New()
	}

	run := &Run{
		InstanceID: idgen.New(),
		SessionID:  sessionID,
		WorkflowID: config.ID,
		StartedAt:  clock.Now(),
		future:     execution.NewFuture(),
		token:      execution.NewCancelToken(),
	}
	go s.run(ctx, config, run, params)
	return run, nil
}

// run executes all step groups, applies rollback on fatal failure and
// settles the run's future exactly once.
func (s *Service) run(ctx context.Context, config *model.WorkflowConfig, run *Run, params map[string]interface{}) {
	result := execution.NewResult(run.InstanceID, run.SessionID, run.StartedAt)

	ctx, span := tracing.StartSpan(ctx, "workflow."+config.ID, "INTERNAL")
	span.WithAttributes(map[string]string{
		"workflow.id": config.ID,
		"session.id":  run.SessionID,
		"instance.id": run.InstanceID,
	})

	fatal := s.runGroups(ctx, config, run, result, params)
	if fatal != nil && len(config.RollbackSteps) > 0 {
		s.rollback(ctx, config, run, result, params)
	}

	result.Finalize(clock.Now())
	tracing.EndSpan(span, fatal)

	s.emitFinal(run.SessionID, result, fatal)
	run.future.Settle(result, fatal)
}

// runGroups drives the groups in order. It returns the workflow-level fault,
// if any. A group that recorded a failure stops the run from advancing to
// later groups regardless of the failing step's own policy outcome.
func (s *Service) runGroups(ctx context.Context, config *model.WorkflowConfig, run *Run, result *execution.Result, params map[string]interface{}) error {
	for _, group := range config.Groups() {
		if run.token.IsCancelled() {
			return executor.ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		before := result.FailureCount()
		if err := s.runGroup(ctx, config, group, result, params, run.token); err != nil {
			return err
		}
		if result.FailureCount() > before {
			return nil
		}
	}
	return nil
}

// runGroup executes one group; members of a multi-step group run
// concurrently and a sibling's failure never prevents the others from
// finishing.
func (s *Service) runGroup(ctx context.Context, config *model.WorkflowConfig, group []string, result *execution.Result, params map[string]interface{}, token *execution.CancelToken) error {
	if len(group) == 1 {
		step := config.Step(group[0])
		if step == nil {
			return fmt.Errorf("workflow %q references unknown step %q", config.ID, group[0])
		}
		return s.executor.Execute(ctx, step, result, params, token)
	}

	var waitGroup sync.WaitGroup
	errs := make([]error, len(group))
	for i, name := range group {
		step := config.Step(name)
		if step == nil {
			return fmt.Errorf("workflow %q references unknown step %q", config.ID, name)
		}
		waitGroup.Add(1)
		go func(i int, step *model.WorkflowStep) {
			defer waitGroup.Done()
			errs[i] = s.executor.Execute(ctx, step, result, params, token)
		}(i, step)
	}
	waitGroup.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// rollback runs the compensating steps sequentially. Each step keeps its own
// retry/timeout/policy behavior; failures are logged and never re-raised so
// they cannot mask the original fault.
func (s *Service) rollback(ctx context.Context, config *model.WorkflowConfig, run *Run, result *execution.Result, params map[string]interface{}) {
	rollbackResult := execution.NewResult(run.InstanceID, run.SessionID, clock.Now())
	for i := range config.RollbackSteps {
		step := &config.RollbackSteps[i]
		if err := s.executor.Execute(ctx, step, rollbackResult, params, nil); err != nil {
			log.Printf("workflow %v rollback step %v failed: %v", config.ID, step.Name, err)
		}
	}
}

// emitFinal publishes the terminal progress update with progress 1.0.
func (s *Service) emitFinal(sessionID string, result *execution.Result, fatal error) {
	if s.reporter == nil {
		return
	}
	status := progress.StatusCompleted
	message := fmt.Sprintf("workflow %v", result.Status)
	if fatal != nil {
		status = progress.StatusFailed
		message = fmt.Sprintf("workflow failed: %v", fatal)
	}
	update := progress.Update{
		SessionID: sessionID,
		Step:      finalStepName,
		Status:    status,
		Progress:  1.0,
		Message:   message,
	}
	if err := s.reporter.Publish(update); err != nil {
		log.Printf("failed to publish final progress update: %v", err)
	}
}
