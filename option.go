package graphrun

import (
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/graphrun/model/job"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/event"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the service
type Option func(s *Service)

// WithConfig sets the configuration; nil keeps the defaults.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithStore sets the run store, overriding store configuration
func WithStore(store run.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithJobs registers jobs in addition to the built-in ones
func WithJobs(jobs ...job.Job) Option {
	return func(s *Service) {
		s.jobs = append(s.jobs, jobs...)
	}
}

// WithFS sets the file system used for resources, workflows and the fs store
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithWorkflowFSOptions sets storage options used to load workflows, e.g. an embed.FS
func WithWorkflowFSOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.workflowFSOptions = options
	}
}

// WithWorkflowBaseURL sets the base URL relative workflow locations resolve against
func WithWorkflowBaseURL(URL string) Option {
	return func(s *Service) {
		s.workflowBaseURL = URL
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventHandler enables lifecycle events delivered to handler
func WithEventHandler(handler event.Handler) Option {
	return func(s *Service) {
		s.eventHandler = handler
	}
}

// WithExecutorListener sets the listener observing every job body execution
func WithExecutorListener(listener executor.Listener) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// spans are written to stdout.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.initErrors = append(s.initErrors, err)
		}
	}
}
