package model

import (
	"fmt"
)

// WorkflowConfig describes one multi-step operational workflow. The
// configuration is caller-supplied and immutable; every name referenced by
// ParallelGroups must exist among Steps and RollbackSteps is a disjoint list
// invoked only on fatal failure.
type WorkflowConfig struct {
	ID             string                 `json:"id" yaml:"id"`
	Name           string                 `json:"name" yaml:"name"`
	Description    string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Steps          []WorkflowStep         `json:"steps" yaml:"steps"`
	ParallelGroups [][]string             `json:"parallelGroups,omitempty" yaml:"parallelGroups,omitempty"`
	RollbackSteps  []WorkflowStep         `json:"rollbackSteps,omitempty" yaml:"rollbackSteps,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Step returns the step with the given name or nil.
func (c *WorkflowConfig) Step(name string) *WorkflowStep {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i]
		}
	}
	return nil
}

// Groups derives the execution plan: when ParallelGroups is set it is used
// verbatim, otherwise every step forms its own single-element group in
// declaration order.
func (c *WorkflowConfig) Groups() [][]string {
	if len(c.ParallelGroups) > 0 {
		return c.ParallelGroups
	}
	groups := make([][]string, 0, len(c.Steps))
	for i := range c.Steps {
		groups = append(groups, []string{c.Steps[i].Name})
	}
	return groups
}

// Validate checks structural invariants of the configuration.
func (c *WorkflowConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", c.ID)
	}
	seen := make(map[string]bool, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		if err := step.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", c.ID, err)
		}
		if seen[step.Name] {
			return fmt.Errorf("workflow %q: duplicate step %q", c.ID, step.Name)
		}
		seen[step.Name] = true
	}
	for _, group := range c.ParallelGroups {
		if len(group) == 0 {
			return fmt.Errorf("workflow %q: empty parallel group", c.ID)
		}
		for _, name := range group {
			if !seen[name] {
				return fmt.Errorf("workflow %q: parallel group references unknown step %q", c.ID, name)
			}
		}
	}
	for i := range c.RollbackSteps {
		step := &c.RollbackSteps[i]
		if err := step.Validate(); err != nil {
			return fmt.Errorf("workflow %q rollback: %w", c.ID, err)
		}
		if seen[step.Name] {
			return fmt.Errorf("workflow %q: rollback step %q collides with a workflow step", c.ID, step.Name)
		}
	}
	return nil
}
