package stepflow

import (
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/x"

	"github.com/stepflow/stepflow/extension"
	"github.com/stepflow/stepflow/model/types"
	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/dao/workflow"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/service/meta"
	"github.com/stepflow/stepflow/service/operation/nop"
	"github.com/stepflow/stepflow/service/operation/printer"
	"github.com/stepflow/stepflow/service/orchestrator"
	"github.com/stepflow/stepflow/service/registry"
	"github.com/stepflow/stepflow/service/session"
)

// Service assembles the engine: operation dispatcher, step executor,
// orchestrator, execution registry and progress reporter.
type Service struct {
	config            *Config
	runtime           *Runtime
	metaService       *meta.Service
	actions           *extension.Actions
	extensionTypes    []*x.Type
	extensionServices []types.Service
	sessions          session.Service
	archiver          registry.Archiver
	executorOptions   []executor.Option
	metaBaseURL       string
	metaFsOptions     []storage.Option
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()

	s.actions = extension.NewActions(s.extensionTypes...)
	s.actions.Register(nop.New())
	s.actions.Register(printer.New())
	for _, service := range s.extensionServices {
		s.actions.Register(service)
	}

	executorOptions := append([]executor.Option{executor.WithConfig(s.config.Executor)}, s.executorOptions...)
	stepExecutor := executor.NewService(s.actions, s.sessions, s.runtime.reporter, executorOptions...)
	s.runtime.orchestrator = orchestrator.New(stepExecutor, s.runtime.reporter)

	registryOptions := []registry.Option{}
	if s.archiver != nil {
		registryOptions = append(registryOptions, registry.WithArchiver(s.archiver))
	}
	s.runtime.registry = registry.New(s.config.Registry, registryOptions...)
	s.runtime.workflowDAO = workflow.New(s.metaService)
	s.runtime.sessions = s.sessions
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.metaService == nil {
		s.metaService = meta.New(afs.New(), s.metaBaseURL, s.metaFsOptions...)
	}
	if s.sessions == nil {
		s.sessions = session.NewMemory()
	}
	if s.runtime.reporter == nil {
		s.runtime.reporter = progress.New(s.config.Progress)
	}
}

// Runtime returns the engine runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Actions returns the operation dispatcher.
func (s *Service) Actions() *extension.Actions {
	return s.actions
}

// RegisterExtensionTypes registers additional operation input/output types.
func (s *Service) RegisterExtensionTypes(types ...*x.Type) {
	for i := range types {
		s.actions.Types().Register(types[i])
	}
}

// RegisterExtensionServices registers additional operation services.
func (s *Service) RegisterExtensionServices(services ...types.Service) {
	for i := range services {
		s.actions.Register(services[i])
	}
}

// New creates the engine service.
func New(options ...Option) *Service {
	ret := &Service{runtime: &Runtime{}}
	ret.init(options)
	return ret
}
