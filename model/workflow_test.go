package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowConfig_Validate(t *testing.T) {
	base := func() *WorkflowConfig {
		return &WorkflowConfig{
			ID:   "deploy",
			Name: "Deploy",
			Steps: []WorkflowStep{
				{Name: "analyze", Operation: "repo.analyze"},
				{Name: "build", Operation: "image.build", Retryable: true, MaxRetries: 2},
				{Name: "scan", Operation: "image.scan", OnError: ErrorPolicyContinue},
			},
		}
	}

	testCases := []struct {
		name      string
		mutate    func(c *WorkflowConfig)
		expectErr string
	}{
		{
			name:   "valid",
			mutate: func(c *WorkflowConfig) {},
		},
		{
			name:      "missing id",
			mutate:    func(c *WorkflowConfig) { c.ID = "" },
			expectErr: "workflow id is required",
		},
		{
			name:      "no steps",
			mutate:    func(c *WorkflowConfig) { c.Steps = nil },
			expectErr: "has no steps",
		},
		{
			name:      "duplicate step",
			mutate:    func(c *WorkflowConfig) { c.Steps[2].Name = "analyze" },
			expectErr: "duplicate step",
		},
		{
			name:      "unknown policy",
			mutate:    func(c *WorkflowConfig) { c.Steps[0].OnError = "retry" },
			expectErr: "unknown error policy",
		},
		{
			name:      "parallel group references unknown step",
			mutate:    func(c *WorkflowConfig) { c.ParallelGroups = [][]string{{"analyze", "push"}} },
			expectErr: "unknown step",
		},
		{
			name:      "empty parallel group",
			mutate:    func(c *WorkflowConfig) { c.ParallelGroups = [][]string{{}} },
			expectErr: "empty parallel group",
		},
		{
			name: "rollback collides with step",
			mutate: func(c *WorkflowConfig) {
				c.RollbackSteps = []WorkflowStep{{Name: "build", Operation: "image.remove"}}
			},
			expectErr: "collides",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := base()
			tc.mutate(config)
			err := config.Validate()
			if tc.expectErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.expectErr)
			}
		})
	}
}

func TestWorkflowConfig_Groups(t *testing.T) {
	config := &WorkflowConfig{
		ID: "pipeline",
		Steps: []WorkflowStep{
			{Name: "a", Operation: "op.a"},
			{Name: "b", Operation: "op.b"},
			{Name: "c", Operation: "op.c"},
		},
	}
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, config.Groups())

	config.ParallelGroups = [][]string{{"a"}, {"b", "c"}}
	assert.Equal(t, config.ParallelGroups, config.Groups())
}

func TestWorkflowStep_MaxAttempts(t *testing.T) {
	assert.Equal(t, 1, (&WorkflowStep{Name: "s"}).MaxAttempts())
	assert.Equal(t, 1, (&WorkflowStep{Name: "s", MaxRetries: 3}).MaxAttempts())
	assert.Equal(t, 4, (&WorkflowStep{Name: "s", Retryable: true, MaxRetries: 3}).MaxAttempts())
}

func TestWorkflowStep_Policy(t *testing.T) {
	assert.Equal(t, ErrorPolicyFail, (&WorkflowStep{}).Policy())
	assert.Equal(t, ErrorPolicySkip, (&WorkflowStep{OnError: ErrorPolicySkip}).Policy())
}
