package interactive

import (
	"context"
	"fmt"

	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/service/scheduler"
)

// Executor hands user input to interactive jobs
type Executor interface {
	ValidateInput(ctx context.Context, runJob *execution.RunJob, data map[string]interface{}) error
	SaveInput(ctx context.Context, runJob *execution.RunJob, data map[string]interface{}) error
}

// Advancer advances a run after its state changed
type Advancer interface {
	Advance(ctx context.Context, runID string) (scheduler.Outcome, error)
}

// Service handles interactive RunJobs
type Service struct {
	store    run.Store
	executor Executor
	advancer Advancer
}

// Pending returns RunJobs of runID waiting for user input.
func (s *Service) Pending(ctx context.Context, runID string) (execution.RunJobs, error) {
	runJobs, err := s.store.RunJobs(ctx, runID)
	if err != nil {
		return nil, err
	}
	var ret execution.RunJobs
	for _, runJob := range runJobs {
		if runJob.NeedsInput && runJob.ReadyForInput && runJob.Status == execution.StatusNotRunning {
			ret = append(ret, runJob)
		}
	}
	return ret, nil
}

// Submit validates data and completes the interactive RunJob with it. Invalid input leaves
// the RunJob untouched. Once claimed, the RunJob ends FINISHED or FAILED and the run is advanced.
func (s *Service) Submit(ctx context.Context, runJobID string, data map[string]interface{}) error {
	runJob, err := s.store.RunJob(ctx, runJobID)
	if err != nil {
		return err
	}
	if !runJob.NeedsInput {
		return fmt.Errorf("%w: %s", executor.ErrNotInteractive, runJob.JobName)
	}
	if runJob.Status != execution.StatusNotRunning {
		return fmt.Errorf("%w: %s is %s", ErrAlreadySubmitted, runJobID, runJob.Status)
	}
	if !runJob.ReadyForInput {
		return fmt.Errorf("%w: %s", ErrNotReady, runJobID)
	}
	if err = s.executor.ValidateInput(ctx, runJob, data); err != nil {
		return err
	}
	claimed, err := s.store.Transition(ctx, runJobID, execution.StatusNotRunning, execution.StatusRunning, "")
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, runJobID)
	}

	logger := logging.FromContext(ctx).With("run_id", runJob.RunID, "run_job_id", runJobID, "job", runJob.JobName)
	saveErr := s.executor.SaveInput(ctx, runJob, data)
	if saveErr != nil {
		logger.Warn("interactive job failed", "error", saveErr)
	}
	if _, err = s.advancer.Advance(ctx, runJob.RunID); err != nil {
		logger.Error("failed to advance run", "error", err)
		if saveErr == nil {
			saveErr = err
		}
	}
	return saveErr
}

// New creates an interactive service
func New(store run.Store, executor Executor, advancer Advancer) *Service {
	return &Service{store: store, executor: executor, advancer: advancer}
}
