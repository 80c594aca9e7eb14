package graphrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/model/job"
	"github.com/viant/graphrun/runtime/correlation"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/allocator"
	"github.com/viant/graphrun/service/conversion"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/run"
	fsstore "github.com/viant/graphrun/service/dao/run/fs"
	memstore "github.com/viant/graphrun/service/dao/run/memory"
	"github.com/viant/graphrun/service/dao/run/postgres"
	"github.com/viant/graphrun/service/dao/workflow"
	"github.com/viant/graphrun/service/dispatcher"
	"github.com/viant/graphrun/service/event"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/service/interactive"
	"github.com/viant/graphrun/service/job/builtin"
	"github.com/viant/graphrun/service/messaging/memory"
	"github.com/viant/graphrun/service/processor"
	"github.com/viant/graphrun/service/scheduler"
	"github.com/viant/graphrun/tracing"
)

// Service wires the engine together
type Service struct {
	config            *Config
	fs                afs.Service
	store             run.Store
	jobs              []job.Job
	logger            *slog.Logger
	workflowFSOptions []storage.Option
	workflowBaseURL   string
	eventHandler      event.Handler
	listener          executor.Listener
	initErrors        []error

	registry *extension.Registry
	runtime  *Runtime
}

// Runtime returns the runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Registry returns the job registry
func (s *Service) Registry() *extension.Registry {
	return s.registry
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// NewContext returns ctx carrying the service logger
func (s *Service) NewContext(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, s.logger)
}

func (s *Service) init(ctx context.Context) error {
	if err := errors.Join(s.initErrors...); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.logger == nil {
		s.logger = logging.New(nil, s.config.Log.Format, s.config.Log.Level)
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.config.Tracing.Enabled {
		if err := tracing.Init(s.config.Tracing.ServiceName, "", s.config.Tracing.File); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	var err error
	if s.registry, err = extension.NewRegistry(append(builtin.Jobs(), s.jobs...)...); err != nil {
		return err
	}
	var closeStore func()
	if s.store == nil {
		if s.store, closeStore, err = s.openStore(ctx); err != nil {
			return err
		}
	}
	if err = s.validatePersistedRuns(ctx); err != nil {
		if closeStore != nil {
			closeStore()
		}
		return err
	}
	return s.initRuntime(closeStore)
}

func (s *Service) openStore(ctx context.Context) (run.Store, func(), error) {
	switch s.config.Store.Driver {
	case StoreFS:
		store, err := fsstore.New(ctx, s.fs, s.config.Store.URL)
		return store, nil, err
	case StorePostgres:
		store, err := postgres.Open(ctx, s.config.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return memstore.New(), nil, nil
}

// validatePersistedRuns fails startup when an open run references a job that is not registered.
func (s *Service) validatePersistedRuns(ctx context.Context) error {
	runs, err := s.store.ListRuns(ctx, dao.NewParameter("Status", string(execution.RunStatusRunning)))
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var required []string
	for _, aRun := range runs {
		runJobs, err := s.store.RunJobs(ctx, aRun.ID)
		if err != nil {
			return err
		}
		for _, runJob := range runJobs {
			if !seen[runJob.JobName] {
				seen[runJob.JobName] = true
				required = append(required, runJob.JobName)
			}
		}
	}
	if err = s.registry.Validate(required...); err != nil {
		return fmt.Errorf("job registry is inconsistent with persisted runs: %w", err)
	}
	return nil
}

func (s *Service) initRuntime(closeStore func()) error {
	r := &Runtime{
		config:     s.config,
		logger:     s.logger,
		registry:   s.registry,
		store:      s.store,
		closeStore: closeStore,
	}
	r.workflowDAO = workflow.New(
		workflow.WithFS(s.fs),
		workflow.WithBaseURL(s.workflowBaseURL),
		workflow.WithFSOptions(s.workflowFSOptions...),
		workflow.WithSpecLookup(s.registry.Spec),
	)
	r.taskQueue = memory.NewQueue[execution.Task](s.config.Queue)

	var schedulerOptions []scheduler.Option
	schedulerOptions = append(schedulerOptions, scheduler.WithCorrelationStore(correlation.NewStore()))
	if s.eventHandler != nil {
		r.events = event.New(event.WithQueueConfig(s.config.Queue))
		r.eventHandler = s.eventHandler
		schedulerOptions = append(schedulerOptions, scheduler.WithPublisher(r.events.Publisher()))
	}
	var err error
	r.dispatcher = dispatcher.New(s.registry, r.taskQueue)
	if r.scheduler, err = scheduler.New(s.store, r.dispatcher, schedulerOptions...); err != nil {
		return err
	}

	listener := s.listener
	if listener == nil {
		listener = executor.LogListener(s.NewContext(context.Background()))
	}
	r.executor = executor.New(s.store, s.registry, executor.WithFS(s.fs), executor.WithListener(listener))
	r.processor, err = processor.New(
		processor.WithMessageQueue(r.taskQueue),
		processor.WithExecutor(r.executor),
		processor.WithConfig(s.config.Processor),
		processor.WithLogger(s.logger),
		processor.WithCompletionHandler(func(ctx context.Context, task *execution.Task, failed bool) {
			r.scheduler.Complete(ctx, task.PassID, task.RunJobID, failed)
		}),
	)
	if err != nil {
		return err
	}
	r.allocator = allocator.New(s.store, r.scheduler, s.config.Allocator)
	if _, err = r.allocator.Recover(s.NewContext(context.Background())); err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}
	r.interactive = interactive.New(s.store, r.executor, r.scheduler)
	r.conversion = conversion.New(s.store, r.scheduler, url.Join(s.config.Storage.BaseURL, "resources"), conversion.WithFS(s.fs))
	r.runsURL = url.Join(s.config.Storage.BaseURL, "runs")
	s.runtime = r
	return nil
}

// New creates a service; the job registry is validated and the configured store opened.
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(context.Background()); err != nil {
		return nil, err
	}
	return ret, nil
}
