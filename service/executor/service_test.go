package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/policy"
	"github.com/stepflow/stepflow/service/session"
)

type stubDispatcher struct {
	calls   int64
	handler func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error)
}

func (d *stubDispatcher) Dispatch(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
	atomic.AddInt64(&d.calls, 1)
	if d.handler != nil {
		return d.handler(ctx, operation, params)
	}
	return map[string]interface{}{"ok": true}, nil
}

func (d *stubDispatcher) count() int {
	return int(atomic.LoadInt64(&d.calls))
}

func fastConfig() Config {
	return Config{BackoffBase: time.Millisecond, BackoffCap: 4 * time.Millisecond}
}

func TestService_Execute_Success(t *testing.T) {
	dispatcher := &stubDispatcher{}
	sessions := session.NewMemory()
	service := NewService(dispatcher, sessions, nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "build", Operation: "nop.nop"}

	err := service.Execute(context.Background(), step, result, map[string]interface{}{"target": "app"}, nil)
	require.NoError(t, err)

	completed, failed, skipped := result.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, dispatcher.count())

	state, err := sessions.GetState(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Contains(t, state, "build_result")
}

func TestService_Execute_ConditionSkips(t *testing.T) {
	dispatcher := &stubDispatcher{}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{
		Name:      "deploy",
		Operation: "nop.nop",
		Condition: func(state map[string]interface{}) bool { return false },
	}

	err := service.Execute(context.Background(), step, result, nil, nil)
	require.NoError(t, err)

	completed, failed, skipped := result.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, skipped)
	assert.Zero(t, dispatcher.count(), "skipped step must not be dispatched")
}

func TestService_Execute_RetriesThenSucceeds(t *testing.T) {
	var attempts int64
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			if atomic.AddInt64(&attempts, 1) < 3 {
				return nil, errors.New("transient")
			}
			return "done", nil
		},
	}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "scan", Operation: "nop.nop", Retryable: true, MaxRetries: 3}

	err := service.Execute(context.Background(), step, result, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, dispatcher.count())

	completed, failed, _ := result.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
}

func TestService_Execute_ExhaustsRetryBudget(t *testing.T) {
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}
	sessions := session.NewMemory()
	service := NewService(dispatcher, sessions, nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "flaky", Operation: "nop.nop", Retryable: true, MaxRetries: 2}

	err := service.Execute(context.Background(), step, result, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 3, dispatcher.count(), "maxRetries=2 means 3 invocations")

	state, ok := sessions.Lookup(context.Background(), "sess-1")
	require.True(t, ok)
	assert.Len(t, state.Errors, 3)
}

func TestService_Execute_NonRetryableFailsOnce(t *testing.T) {
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "once", Operation: "nop.nop", MaxRetries: 5}

	err := service.Execute(context.Background(), step, result, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, dispatcher.count(), "non-retryable steps get a single attempt")
}

func TestService_Execute_ErrorPolicies(t *testing.T) {
	testCases := []struct {
		description string
		policy      model.ErrorPolicy
		expectErr   bool
		skipped     int
	}{
		{description: "fail policy escalates", policy: model.ErrorPolicyFail, expectErr: true},
		{description: "skip policy records skip", policy: model.ErrorPolicySkip, skipped: 1},
		{description: "continue policy swallows", policy: model.ErrorPolicyContinue},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			dispatcher := &stubDispatcher{
				handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
					return nil, errors.New("boom")
				},
			}
			service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))
			result := execution.NewResult("exec-1", "sess-1", time.Now())
			step := &model.WorkflowStep{Name: "fragile", Operation: "nop.nop", OnError: tc.policy}

			err := service.Execute(context.Background(), step, result, nil, nil)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			_, failed, skipped := result.Counts()
			assert.Equal(t, 1, failed)
			assert.Equal(t, tc.skipped, skipped)
		})
	}
}

func TestService_Execute_Timeout(t *testing.T) {
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "slow", Operation: "nop.nop", Timeout: 10 * time.Millisecond}

	err := service.Execute(context.Background(), step, result, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepTimeout), "expected timeout error, got %v", err)
}

func TestService_Execute_Abort(t *testing.T) {
	dispatcher := &stubDispatcher{}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	token := execution.NewCancelToken()
	token.Cancel()

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "deploy", Operation: "nop.nop"}

	err := service.Execute(context.Background(), step, result, nil, token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Zero(t, dispatcher.count())
}

func TestService_Execute_AbortDuringInvocation(t *testing.T) {
	token := execution.NewCancelToken()
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			token.Cancel()
			<-time.After(time.Second)
			return "late", nil
		},
	}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "deploy", Operation: "nop.nop", Retryable: true, MaxRetries: 3}

	err := service.Execute(context.Background(), step, result, nil, token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, 1, dispatcher.count(), "abort must stop the retry loop")
}

func TestService_Execute_PolicyGate(t *testing.T) {
	dispatcher := &stubDispatcher{}
	service := NewService(dispatcher, session.NewMemory(), nil, WithConfig(fastConfig()))

	ctx := policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeDeny})
	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{Name: "deploy", Operation: "system.exec", Retryable: true, MaxRetries: 3}

	err := service.Execute(ctx, step, result, nil, nil)
	require.Error(t, err)
	assert.Zero(t, dispatcher.count(), "denied operations are never dispatched or retried")
}

func TestService_Execute_MapParams(t *testing.T) {
	var seen map[string]interface{}
	dispatcher := &stubDispatcher{
		handler: func(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
			seen = params
			return "ok", nil
		},
	}
	sessions := session.NewMemory()
	require.NoError(t, sessions.UpdateState(context.Background(), "sess-1", map[string]interface{}{"region": "us-east"}))
	service := NewService(dispatcher, sessions, nil, WithConfig(fastConfig()))

	result := execution.NewResult("exec-1", "sess-1", time.Now())
	step := &model.WorkflowStep{
		Name:      "deploy",
		Operation: "nop.nop",
		MapParams: func(params, state map[string]interface{}) map[string]interface{} {
			return map[string]interface{}{
				"target": fmt.Sprintf("%v-%v", params["app"], state["region"]),
			}
		},
	}

	err := service.Execute(context.Background(), step, result, map[string]interface{}{"app": "web"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"target": "web-us-east"}, seen)
}

func TestService_Backoff(t *testing.T) {
	service := NewService(&stubDispatcher{}, session.NewMemory(), nil)

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, service.backoff(attempt), "attempt %d", attempt)
	}
}
