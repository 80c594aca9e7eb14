package graphrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/model"
	"github.com/viant/graphrun/progress"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/allocator"
	"github.com/viant/graphrun/service/conversion"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/dao/workflow"
	"github.com/viant/graphrun/service/dispatcher"
	"github.com/viant/graphrun/service/event"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/service/interactive"
	"github.com/viant/graphrun/service/messaging/memory"
	"github.com/viant/graphrun/service/processor"
	"github.com/viant/graphrun/service/scheduler"
	"github.com/viant/graphrun/tracing"
)

// ErrTimeout is returned by WaitForRun when the run did not finish in time.
var ErrTimeout = errors.New("graphrun: timeout waiting for run")

// Runtime represents the workflow engine runtime
type Runtime struct {
	config       *Config
	logger       *slog.Logger
	registry     *extension.Registry
	store        run.Store
	closeStore   func()
	runsURL      string
	workflowDAO  *workflow.Service
	taskQueue    *memory.Queue[execution.Task]
	dispatcher   *dispatcher.Service
	scheduler    *scheduler.Service
	executor     *executor.Service
	processor    *processor.Service
	allocator    *allocator.Service
	interactive  *interactive.Service
	conversion   *conversion.Service
	events       *event.Service
	eventHandler event.Handler

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	shutdown sync.Once
}

// LoadWorkflow loads and validates a workflow
func (r *Runtime) LoadWorkflow(ctx context.Context, location string) (*model.Workflow, error) {
	return r.workflowDAO.Load(ctx, location)
}

// DecodeYAMLWorkflow decodes and validates a workflow
func (r *Runtime) DecodeYAMLWorkflow(location string, data []byte) (*model.Workflow, error) {
	return r.workflowDAO.DecodeYAML(location, data)
}

// CreateRun persists a new run of wf and advances it once. bindings map unconnected input
// ports ("<workflowJobID>.<port>") to uploaded resource ids, which must exist.
func (r *Runtime) CreateRun(ctx context.Context, wf *model.Workflow, bindings map[string]string) (*execution.WorkflowRun, error) {
	ctx = r.context(ctx)
	ctx, span := tracing.StartSpan(ctx, "runtime.CreateRun", "INTERNAL")
	err := r.checkBindings(ctx, bindings)
	var plan *execution.Plan
	if err == nil {
		plan, err = execution.NewPlan(wf, r.registry.Spec, bindings, r.runsURL)
	}
	if err == nil {
		span.WithAttributes(map[string]string{"run.id": plan.Run.ID, "workflow": wf.Name})
		err = r.store.CreateRun(ctx, plan)
	}
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("run created", "run_id", plan.Run.ID, "workflow", wf.Name, "run_jobs", len(plan.RunJobs))
	if _, err = r.scheduler.Advance(ctx, plan.Run.ID); err != nil {
		return plan.Run, err
	}
	return plan.Run, nil
}

func (r *Runtime) checkBindings(ctx context.Context, bindings map[string]string) error {
	var issues []error
	for port, resourceID := range bindings {
		if resourceID == "" {
			continue
		}
		if _, err := r.store.Resource(ctx, resourceID); err != nil {
			issues = append(issues, fmt.Errorf("binding %s: %w", port, err))
		}
	}
	return errors.Join(issues...)
}

// Advance runs one scheduling pass
func (r *Runtime) Advance(ctx context.Context, runID string) (scheduler.Outcome, error) {
	return r.scheduler.Advance(r.context(ctx), runID)
}

// UploadResource stores data as a resource awaiting conversion
func (r *Runtime) UploadResource(ctx context.Context, name, resourceType string, data []byte) (*execution.Resource, error) {
	return r.conversion.Upload(r.context(ctx), name, resourceType, data)
}

// ConvertResource makes a resource consumable and advances runs waiting on it
func (r *Runtime) ConvertResource(ctx context.Context, resourceID string) error {
	return r.conversion.Convert(r.context(ctx), resourceID)
}

// ConvertResourceAsync converts a resource in the background
func (r *Runtime) ConvertResourceAsync(ctx context.Context, resourceID string) {
	r.conversion.ConvertAsync(r.context(ctx), resourceID)
}

// PendingInput lists RunJobs of a run waiting for user input
func (r *Runtime) PendingInput(ctx context.Context, runID string) (execution.RunJobs, error) {
	return r.interactive.Pending(ctx, runID)
}

// SubmitInput completes an interactive RunJob with user data
func (r *Runtime) SubmitInput(ctx context.Context, runJobID string, data map[string]interface{}) error {
	return r.interactive.Submit(r.context(ctx), runJobID, data)
}

// Run returns a run
func (r *Runtime) Run(ctx context.Context, runID string) (*execution.WorkflowRun, error) {
	return r.store.Run(ctx, runID)
}

// Runs lists runs, optionally filtered by "Status"
func (r *Runtime) Runs(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.WorkflowRun, error) {
	return r.store.ListRuns(ctx, parameters...)
}

// RunJobs returns the RunJobs of a run
func (r *Runtime) RunJobs(ctx context.Context, runID string) (execution.RunJobs, error) {
	return r.store.RunJobs(ctx, runID)
}

// Progress summarises the RunJob statuses of a run
func (r *Runtime) Progress(ctx context.Context, runID string) (*progress.Progress, error) {
	runJobs, err := r.store.RunJobs(ctx, runID)
	if err != nil {
		return nil, err
	}
	return progress.New(runID, runJobs), nil
}

// Resource returns a resource
func (r *Runtime) Resource(ctx context.Context, id string) (*execution.Resource, error) {
	return r.store.Resource(ctx, id)
}

// OutputResource returns the resource produced on port by the RunJob of workflowJobID
func (r *Runtime) OutputResource(ctx context.Context, runID, workflowJobID, port string) (*execution.Resource, error) {
	runJobs, err := r.store.RunJobs(ctx, runID)
	if err != nil {
		return nil, err
	}
	runJob, ok := runJobs.ByWorkflowJob()[workflowJobID]
	if !ok {
		return nil, fmt.Errorf("job %s of run %s: %w", workflowJobID, runID, dao.ErrNotFound)
	}
	outputs, err := r.store.Outputs(ctx, runJob.ID)
	if err != nil {
		return nil, err
	}
	for _, output := range outputs {
		if output.Port == port {
			return r.store.Resource(ctx, output.ResourceID)
		}
	}
	return nil, fmt.Errorf("output %s.%s of run %s: %w", workflowJobID, port, runID, dao.ErrNotFound)
}

// WaitForRun polls the run until it is FINISHED or timeout elapses.
func (r *Runtime) WaitForRun(ctx context.Context, runID string, timeout time.Duration) (*execution.WorkflowRun, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		aRun, err := r.store.Run(ctx, runID)
		if err != nil {
			return nil, err
		}
		if aRun.IsFinished() {
			return aRun, nil
		}
		if time.Now().After(deadline) {
			return aRun, fmt.Errorf("%w %s after %s", ErrTimeout, runID, timeout)
		}
		select {
		case <-ctx.Done():
			return aRun, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start launches the workers, the sweep loop and the event listener.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(r.context(ctx))
	if err := r.processor.Start(ctx); err != nil {
		return err
	}
	if r.events != nil {
		r.events.SetListener(ctx, r.eventHandler)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.allocator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("allocator stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops background work and releases the store.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var err error
	r.shutdown.Do(func() {
		r.allocator.Shutdown()
		r.processor.Shutdown()
		r.conversion.Wait()
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		r.scheduler.Wait()
		for runID, pending := range r.scheduler.OpenPasses() {
			r.logger.Warn("shutting down with run jobs in flight", "run_id", runID, "pending", pending)
		}
		r.taskQueue.Close()
		if r.events != nil {
			r.events.Close()
		}
		if r.closeStore != nil {
			r.closeStore()
		}
		if r.config.Tracing.Enabled {
			err = tracing.Shutdown(ctx)
		}
	})
	return err
}

// context attaches the runtime logger unless the caller supplied one.
func (r *Runtime) context(ctx context.Context) context.Context {
	return logging.Ensure(ctx, r.logger)
}
