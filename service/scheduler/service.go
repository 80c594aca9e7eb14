package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/viant/graphrun/internal/idgen"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/correlation"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/event"
	"github.com/viant/graphrun/tracing"
)

// Outcome is the result of a scheduling pass
type Outcome string

const (
	// Dispatched means at least one RunJob was handed to a worker.
	Dispatched Outcome = "dispatched"
	// Finished means this pass transitioned the run to FINISHED.
	Finished Outcome = "finished"
	// Idle means there was nothing to dispatch and the run is still open, or was
	// already finished by an earlier pass.
	Idle Outcome = "idle"
)

// Dispatcher hands a claimed RunJob to a worker and returns its task handle.
type Dispatcher interface {
	Dispatch(ctx context.Context, runJob *execution.RunJob, passID string) (string, error)
}

// Publisher receives lifecycle events
type Publisher interface {
	Publish(ctx context.Context, e *event.Event) error
}

// Service advances runs
type Service struct {
	store      run.Store
	dispatcher Dispatcher
	groups     *correlation.Store
	publisher  Publisher
	meter      metric.Meter
	metrics    *metrics
	resumes    sync.WaitGroup
}

// Advance runs one scheduling pass over runID.
func (s *Service) Advance(ctx context.Context, runID string) (outcome Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Advance", "INTERNAL")
	span.WithAttributes(map[string]string{"run.id": runID})
	defer func() {
		span.WithAttributes(map[string]string{"outcome": string(outcome)})
		tracing.EndSpan(span, err)
		s.metrics.pass(ctx, outcome, err)
	}()
	logger := logging.FromContext(ctx).With("run_id", runID)
	ctx = logging.WithLogger(ctx, logger)

	aRun, err := s.store.Run(ctx, runID)
	if err != nil {
		return Idle, err
	}
	if aRun.IsFinished() {
		return Idle, nil
	}

	cancelled, err := s.store.CancelBlocked(ctx, runID)
	if err != nil {
		return Idle, fmt.Errorf("failed to cancel blocked run jobs of %s: %w", runID, err)
	}
	if len(cancelled) > 0 {
		span.AddEvent("cancelled blocked")
		logger.Info("cancelled blocked run jobs", "count", len(cancelled))
	}

	ready, err := s.store.MarkReadyForInput(ctx, runID)
	if err != nil {
		return Idle, fmt.Errorf("failed to update interactive readiness of %s: %w", runID, err)
	}
	for _, runJobID := range ready {
		logger.Info("run job awaits input", "run_job_id", runJobID)
		s.publish(ctx, event.NewEvent(event.TypeReadyForInput, runID, runJobID))
	}

	frontier, err := s.store.Eligible(ctx, runID)
	if err != nil {
		return Idle, fmt.Errorf("failed to compute frontier of %s: %w", runID, err)
	}
	frontier = frontier.Distinct()
	if len(frontier) == 0 {
		return s.settle(ctx, runID)
	}

	if err = ctx.Err(); err != nil {
		return Idle, err
	}
	claimed, err := s.store.Claim(ctx, runID, frontier.IDs())
	if err != nil {
		return Idle, fmt.Errorf("failed to claim frontier of %s: %w", runID, err)
	}
	if len(claimed) == 0 {
		// another pass claimed the whole frontier
		return Idle, nil
	}
	if len(claimed) < len(frontier) {
		span.AddEvent("lost claim race")
		logger.Debug("lost claim race", "frontier", len(frontier), "claimed", len(claimed))
	}

	passID := idgen.NewWithPrefix("pass")
	s.groups.Create(correlation.NewGroup(passID, runID, len(claimed)))
	span.WithAttributes(map[string]string{"pass.id": passID})
	return Dispatched, s.dispatch(logging.WithLogger(ctx, logger.With("pass_id", passID)), passID, claimed)
}

// settle finishes the run when nothing is left to do.
func (s *Service) settle(ctx context.Context, runID string) (Outcome, error) {
	open, err := s.store.HasNonTerminal(ctx, runID)
	if err != nil {
		return Idle, err
	}
	if open {
		return Idle, nil
	}
	finished, err := s.store.FinishRun(ctx, runID)
	if err != nil {
		return Idle, fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if !finished {
		return Idle, nil
	}
	logging.FromContext(ctx).Info("run finished")
	s.metrics.finishedRuns.Add(ctx, 1)
	s.publish(ctx, event.NewEvent(event.TypeRunFinished, runID, ""))
	return Finished, nil
}

// dispatch hands every claimed RunJob to the dispatcher concurrently. A RunJob that cannot be
// dispatched is failed and reported as a completed member of the pass group.
func (s *Service) dispatch(ctx context.Context, passID string, claimed execution.RunJobs) error {
	logger := logging.FromContext(ctx)
	var mux sync.Mutex
	var undispatched []string
	var issues []error

	var group errgroup.Group
	for _, runJob := range claimed {
		group.Go(func() error {
			handle, err := s.dispatcher.Dispatch(ctx, runJob, passID)
			if err != nil {
				logger.Error("failed to dispatch run job", "run_job_id", runJob.ID, "job", runJob.JobName, "error", err)
				if _, tErr := s.store.Transition(ctx, runJob.ID, execution.StatusRunning, execution.StatusFailed, err.Error()); tErr != nil {
					err = errors.Join(err, tErr)
				}
				mux.Lock()
				undispatched = append(undispatched, runJob.ID)
				issues = append(issues, err)
				mux.Unlock()
				return nil
			}
			if err = s.store.SetTaskHandle(ctx, runJob.ID, handle); err != nil {
				logger.Warn("failed to record task handle", "run_job_id", runJob.ID, "task", handle, "error", err)
			}
			s.metrics.dispatched.Add(ctx, 1)
			s.publish(ctx, event.NewEvent(event.TypeDispatched, runJob.RunID, runJob.ID).WithData("task", handle).WithData("job", runJob.JobName))
			return nil
		})
	}
	_ = group.Wait()

	for _, runJobID := range undispatched {
		s.Complete(ctx, passID, runJobID, true)
	}
	return errors.Join(issues...)
}

// Complete reports the outcome of a dispatched RunJob. The report completing the pass group
// advances the run on its own goroutine, so the reporting worker is released before the next
// frontier is dispatched. Reports for an unknown pass, for instance one opened before a
// restart, advance the run directly.
func (s *Service) Complete(ctx context.Context, passID string, runJobID string, failed bool) {
	logger := logging.FromContext(ctx).With("pass_id", passID, "run_job_id", runJobID)
	runID := ""
	group := s.groups.Get(passID)
	if group != nil {
		runID = group.RunID
	}
	if runJob, err := s.store.RunJob(ctx, runJobID); err == nil {
		runID = runJob.RunID
		s.publish(ctx, event.NewEvent(event.TypeCompleted, runJob.RunID, runJobID).WithData("status", string(runJob.Status)).WithData("failed", failed))
	}
	if group != nil {
		if _, complete := s.groups.Complete(passID, runJobID, failed); !complete {
			logger.Debug("pass member completed", "pending", group.Pending())
			return
		}
		logger.Debug("pass completed", "expected", group.Expected, "failed", group.Failed())
	}
	if runID == "" {
		logger.Warn("completion for unknown run job")
		return
	}
	s.resume(logging.WithLogger(ctx, logger), runID)
}

// OpenPasses returns, per run, how many dispatched RunJobs have not reported completion yet.
func (s *Service) OpenPasses() map[string]int {
	ret := map[string]int{}
	s.groups.Iterate(func(_ string, group *correlation.Group) {
		if group.Done() {
			return
		}
		ret[group.RunID] += group.Pending()
	})
	return ret
}

func (s *Service) resume(ctx context.Context, runID string) {
	s.resumes.Add(1)
	go func() {
		defer s.resumes.Done()
		logger := logging.FromContext(ctx)
		if ctx.Err() != nil {
			logger.Debug("skipping continuation, context done", "run_id", runID)
			return
		}
		if _, err := s.Advance(ctx, runID); err != nil {
			logger.Error("failed to advance run", "run_id", runID, "error", err)
		}
	}()
}

// Wait blocks until every continuation started by Complete has returned.
func (s *Service) Wait() {
	s.resumes.Wait()
}

func (s *Service) publish(ctx context.Context, e *event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("failed to publish event", "type", e.Type, "error", err)
	}
}

// New creates a scheduler
func New(store run.Store, dispatcher Dispatcher, opts ...Option) (*Service, error) {
	ret := &Service{store: store, dispatcher: dispatcher}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if ret.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if ret.groups == nil {
		ret.groups = correlation.NewStore()
	}
	if ret.meter == nil {
		ret.meter = otel.Meter(tracing.InstrumentationName)
	}
	var err error
	if ret.metrics, err = newMetrics(ret.meter); err != nil {
		return nil, fmt.Errorf("failed to create scheduler metrics: %w", err)
	}
	return ret, nil
}
