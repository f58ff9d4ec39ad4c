// Package workflow loads workflow configurations from YAML, caches them by
// location and validates their structural invariants before they reach the
// engine.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stepflow/stepflow/model"
	"github.com/stepflow/stepflow/service/meta"
	"gopkg.in/yaml.v3"
)

// Service decodes and caches workflow configurations.
type Service struct {
	metaService *meta.Service
	mu          sync.RWMutex
	cache       map[string]*model.WorkflowConfig
}

// stepDefinition is the serialisable form of a step; durations are kept as
// strings ("30s") and parsed on conversion.
type stepDefinition struct {
	Name        string `yaml:"name"`
	Operation   string `yaml:"operation"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Retryable   bool   `yaml:"retryable"`
	MaxRetries  int    `yaml:"maxRetries"`
	Timeout     string `yaml:"timeout"`
	OnError     string `yaml:"onError"`
}

type configDefinition struct {
	ID             string                 `yaml:"id"`
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	Steps          []stepDefinition       `yaml:"steps"`
	ParallelGroups [][]string             `yaml:"parallelGroups"`
	RollbackSteps  []stepDefinition       `yaml:"rollbackSteps"`
	Metadata       map[string]interface{} `yaml:"metadata"`
}

// Load returns the workflow configuration at the given URL, loading and
// caching it on first use. An extension-less location defaults to .yaml.
func (s *Service) Load(ctx context.Context, URL string) (*model.WorkflowConfig, error) {
	if filepath.Ext(URL) == "" {
		URL += ".yaml"
	}
	s.mu.RLock()
	cached, ok := s.cache[URL]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var definition configDefinition
	if err := s.metaService.Load(ctx, URL, &definition); err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	config, err := s.convert(&definition, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow from %s: %w", URL, err)
	}

	s.mu.Lock()
	s.cache[URL] = config
	s.mu.Unlock()
	return config, nil
}

// DecodeYAML decodes a workflow configuration from raw YAML bytes.
func (s *Service) DecodeYAML(encoded []byte) (*model.WorkflowConfig, error) {
	var definition configDefinition
	if err := yaml.Unmarshal(encoded, &definition); err != nil {
		return nil, err
	}
	return s.convert(&definition, "")
}

// Refresh discards any cached copy for the location so the next Load reloads
// it from the underlying storage.
func (s *Service) Refresh(location string) {
	if filepath.Ext(location) == "" {
		location += ".yaml"
	}
	s.mu.Lock()
	delete(s.cache, location)
	s.mu.Unlock()
}

// Upsert stores a configuration in the cache under the given location,
// making it immediately available to Load.
func (s *Service) Upsert(location string, config *model.WorkflowConfig) {
	if filepath.Ext(location) == "" {
		location += ".yaml"
	}
	s.mu.Lock()
	s.cache[location] = config
	s.mu.Unlock()
}

func (s *Service) convert(definition *configDefinition, URL string) (*model.WorkflowConfig, error) {
	config := &model.WorkflowConfig{
		ID:             definition.ID,
		Name:           definition.Name,
		Description:    definition.Description,
		ParallelGroups: definition.ParallelGroups,
		Metadata:       definition.Metadata,
	}
	if config.ID == "" {
		config.ID = nameFromURL(URL)
	}
	if config.Name == "" {
		config.Name = config.ID
	}
	for i := range definition.Steps {
		step, err := convertStep(&definition.Steps[i])
		if err != nil {
			return nil, err
		}
		config.Steps = append(config.Steps, *step)
	}
	for i := range definition.RollbackSteps {
		step, err := convertStep(&definition.RollbackSteps[i])
		if err != nil {
			return nil, err
		}
		config.RollbackSteps = append(config.RollbackSteps, *step)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func convertStep(definition *stepDefinition) (*model.WorkflowStep, error) {
	step := &model.WorkflowStep{
		Name:        definition.Name,
		Operation:   definition.Operation,
		Description: definition.Description,
		Required:    definition.Required,
		Retryable:   definition.Retryable,
		MaxRetries:  definition.MaxRetries,
		OnError:     model.ErrorPolicy(definition.OnError),
	}
	if definition.Timeout != "" {
		timeout, err := time.ParseDuration(definition.Timeout)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid timeout %q: %w", definition.Name, definition.Timeout, err)
		}
		step.Timeout = timeout
	}
	return step, nil
}

func nameFromURL(URL string) string {
	base := filepath.Base(URL)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// New creates a workflow configuration DAO.
func New(metaService *meta.Service) *Service {
	return &Service{
		metaService: metaService,
		cache:       make(map[string]*model.WorkflowConfig),
	}
}
