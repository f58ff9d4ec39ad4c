package stepflow

import (
	"fmt"

	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/service/registry"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON or YAML. The zero-value is useful - all nested
// fields inherit their package defaults.
type Config struct {
	Executor executor.Config `json:"executor" yaml:"executor"`
	Registry registry.Config `json:"registry" yaml:"registry"`
	Progress progress.Config `json:"progress" yaml:"progress"`
}

// DefaultConfig returns a Config populated with every package default.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Executor: executor.DefaultConfig(),
		Registry: registry.DefaultConfig(),
		Progress: progress.DefaultConfig(),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Executor.BackoffBase < 0 {
		return fmt.Errorf("executor.backoffBase must be >= 0")
	}
	if c.Executor.BackoffCap < c.Executor.BackoffBase {
		return fmt.Errorf("executor.backoffCap must be >= executor.backoffBase")
	}
	if c.Registry.HistoryLimit < 0 {
		return fmt.Errorf("registry.historyLimit must be >= 0")
	}
	if c.Progress.QueueBuffer < 0 {
		return fmt.Errorf("progress.queueBuffer must be >= 0")
	}
	return nil
}
