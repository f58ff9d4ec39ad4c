package stepflow

import (
	"github.com/viant/afs/storage"
	"github.com/viant/x"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/stepflow/stepflow/model/types"
	"github.com/stepflow/stepflow/progress"
	"github.com/stepflow/stepflow/service/executor"
	"github.com/stepflow/stepflow/service/meta"
	"github.com/stepflow/stepflow/service/registry"
	"github.com/stepflow/stepflow/service/session"
	"github.com/stepflow/stepflow/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithExtensionTypes sets the extension types
func WithExtensionTypes(types ...*x.Type) Option {
	return func(s *Service) {
		s.extensionTypes = types
	}
}

// WithExtensionServices sets the extension services
func WithExtensionServices(services ...types.Service) Option {
	return func(s *Service) {
		s.extensionServices = services
	}
}

// WithMetaService sets the meta service
func WithMetaService(service *meta.Service) Option {
	return func(s *Service) {
		s.metaService = service
	}
}

// WithSessionService sets the session state store.
func WithSessionService(sessions session.Service) Option {
	return func(s *Service) {
		s.sessions = sessions
	}
}

// WithReporter sets the progress reporter.
func WithReporter(reporter *progress.Reporter) Option {
	return func(s *Service) {
		s.runtime.reporter = reporter
	}
}

// WithArchiver directs settled execution results into the supplied store.
func WithArchiver(archiver registry.Archiver) Option {
	return func(s *Service) {
		s.archiver = archiver
	}
}

// WithExecutorOptions lets the caller supply additional options passed to
// executor.NewService.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(s *Service) {
		s.executorOptions = append(s.executorOptions, opts...)
	}
}

// WithMetaBaseURL sets the meta base URL
func WithMetaBaseURL(url string) Option {
	return func(s *Service) {
		s.metaBaseURL = url
	}
}

// WithMetaFsOptions with meta file system options
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = options
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If
// outputFile is empty the stdout exporter is used; otherwise spans are
// written to the supplied file path. Safe to call multiple times - the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, for example OTLP, Jaeger or Zipkin. Safe to call multiple
// times - the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
