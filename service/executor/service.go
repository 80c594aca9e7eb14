package executor

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/model/job"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/tracing"
)

// Listener is invoked once a job body returns, regardless of whether it failed.
type Listener func(runJob *execution.RunJob, jobCtx *job.Context, err error)

// LogListener logs every execution at debug level, failures at warn level.
func LogListener(ctx context.Context) Listener {
	logger := logging.FromContext(ctx)
	return func(runJob *execution.RunJob, jobCtx *job.Context, err error) {
		if err != nil {
			logger.Warn("job failed", "run_id", runJob.RunID, "run_job_id", runJob.ID, "job", runJob.JobName, "error", err)
			return
		}
		logger.Debug("job executed", "run_id", runJob.RunID, "run_job_id", runJob.ID, "job", runJob.JobName, "outputs", len(jobCtx.Outputs))
	}
}

// Option is used to customise the executor instance.
type Option func(*Service)

// WithListener sets the listener invoked after every job body. Passing nil disables it.
func WithListener(l Listener) Option {
	return func(s *Service) {
		s.listener = l
	}
}

// WithFS sets the file system handed to job bodies
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// Service executes job bodies against the run store.
type Service struct {
	store    run.Store
	registry *extension.Registry
	fs       afs.Service
	listener Listener
}

// Execute runs the job body of a dispatched task. On success every output resource is made
// consumable and the RunJob transitions RUNNING -> FINISHED. A failing body leaves the RunJob
// RUNNING and returns the error so that the caller can retry or call Fail.
func (s *Service) Execute(ctx context.Context, task *execution.Task) (err error) {
	ctx, span := tracing.StartSpan(ctx, "executor.Execute "+task.JobName, "CONSUMER")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"run.id": task.RunID, "run_job.id": task.RunJobID, "job": task.JobName})

	runJob, err := s.store.RunJob(ctx, task.RunJobID)
	if err != nil {
		return err
	}
	if runJob.Status != execution.StatusRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, runJob.ID, runJob.Status)
	}
	aJob, err := s.registry.Lookup(runJob.JobName)
	if err != nil {
		return err
	}
	jobCtx, err := s.JobContext(ctx, runJob)
	if err != nil {
		return err
	}
	err = safeCall(func() error { return aJob.Run(ctx, jobCtx) })
	if s.listener != nil {
		s.listener(runJob, jobCtx, err)
	}
	if err != nil {
		return err
	}
	return s.finish(ctx, runJob.ID)
}

// SaveInput hands user input to an interactive job and finalises the RunJob, which the caller
// must have claimed (RUNNING). On error the RunJob is failed.
func (s *Service) SaveInput(ctx context.Context, runJob *execution.RunJob, data map[string]interface{}) (err error) {
	ctx, span := tracing.StartSpan(ctx, "executor.SaveInput "+runJob.JobName, "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	aJob, err := s.registry.Lookup(runJob.JobName)
	if err != nil {
		return err
	}
	interactive, ok := aJob.(job.InteractiveJob)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInteractive, runJob.JobName)
	}
	jobCtx, err := s.JobContext(ctx, runJob)
	if err != nil {
		return err
	}
	err = safeCall(func() error { return interactive.SaveInput(ctx, jobCtx, data) })
	if s.listener != nil {
		s.listener(runJob, jobCtx, err)
	}
	if err != nil {
		if failErr := s.Fail(ctx, runJob.ID, err); failErr != nil {
			return fmt.Errorf("%w (and failed to record failure: %v)", err, failErr)
		}
		return err
	}
	return s.finish(ctx, runJob.ID)
}

// Fail transitions a RUNNING RunJob to FAILED, recording cause.
func (s *Service) Fail(ctx context.Context, runJobID string, cause error) error {
	message := "failed"
	if cause != nil {
		message = cause.Error()
	}
	ok, err := s.store.Transition(ctx, runJobID, execution.StatusRunning, execution.StatusFailed, message)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, runJobID)
	}
	return nil
}

// ValidateInput validates user input without changing any state.
func (s *Service) ValidateInput(ctx context.Context, runJob *execution.RunJob, data map[string]interface{}) error {
	aJob, err := s.registry.Lookup(runJob.JobName)
	if err != nil {
		return err
	}
	interactive, ok := aJob.(job.InteractiveJob)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInteractive, runJob.JobName)
	}
	jobCtx, err := s.JobContext(ctx, runJob)
	if err != nil {
		return err
	}
	return safeCall(func() error { return interactive.ValidateInput(ctx, jobCtx, data) })
}

// JobContext resolves the ports of a RunJob: inputs expose the compatible representation of
// their resource, outputs the raw location the job writes to.
func (s *Service) JobContext(ctx context.Context, runJob *execution.RunJob) (*job.Context, error) {
	ret := &job.Context{
		RunID:    runJob.RunID,
		RunJobID: runJob.ID,
		Settings: runJob.Settings,
		Inputs:   map[string][]*job.Artifact{},
		Outputs:  map[string][]*job.Artifact{},
		FS:       s.fs,
	}
	inputs, err := s.store.Inputs(ctx, runJob.ID)
	if err != nil {
		return nil, err
	}
	for _, input := range inputs {
		resource, err := s.store.Resource(ctx, input.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input %s of %s: %w", input.Port, runJob.WorkflowJobID, err)
		}
		ret.Inputs[input.Port] = append(ret.Inputs[input.Port], artifact(resource, resource.CompatURL))
	}
	outputs, err := s.store.Outputs(ctx, runJob.ID)
	if err != nil {
		return nil, err
	}
	for _, output := range outputs {
		resource, err := s.store.Resource(ctx, output.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve output %s of %s: %w", output.Port, runJob.WorkflowJobID, err)
		}
		ret.Outputs[output.Port] = append(ret.Outputs[output.Port], artifact(resource, resource.RawURL))
	}
	return ret, nil
}

func artifact(resource *execution.Resource, URL string) *job.Artifact {
	return &job.Artifact{ResourceID: resource.ID, Name: resource.Name, Type: resource.ResourceType, URL: URL}
}

// finish makes outputs consumable before the status write: a FINISHED producer never has
// pending outputs.
func (s *Service) finish(ctx context.Context, runJobID string) error {
	outputs, err := s.store.Outputs(ctx, runJobID)
	if err != nil {
		return err
	}
	for _, output := range outputs {
		resource, err := s.store.Resource(ctx, output.ResourceID)
		if err != nil {
			return err
		}
		if err := s.store.SetCompatible(ctx, resource.ID, resource.RawURL); err != nil {
			return err
		}
	}
	ok, err := s.store.Transition(ctx, runJobID, execution.StatusRunning, execution.StatusFinished, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, runJobID)
	}
	return nil
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn()
}

// New creates an executor
func New(store run.Store, registry *extension.Registry, opts ...Option) *Service {
	s := &Service{store: store, registry: registry}
	for _, o := range opts {
		o(s)
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	return s
}
