// Package run defines the persisted store query surface used by the scheduler,
// the executor and the collaborators feeding them.
//
// Every mutation is predicate scoped: an implementation applies the predicate
// and the write as one atomic step, so concurrent scheduling passes never race
// between reading a status and writing it.
package run

import (
	"context"

	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
)

// Store persists workflow runs, RunJobs, resources and their bindings.
type Store interface {
	// CreateRun persists the whole plan atomically.
	CreateRun(ctx context.Context, plan *execution.Plan) error

	// Run returns a run; dao.ErrNotFound when missing.
	Run(ctx context.Context, runID string) (*execution.WorkflowRun, error)

	// ListRuns lists runs, optionally filtered by a "Status" parameter.
	ListRuns(ctx context.Context, parameters ...*dao.Parameter) ([]*execution.WorkflowRun, error)

	// RunJob returns a RunJob; dao.ErrNotFound when missing.
	RunJob(ctx context.Context, id string) (*execution.RunJob, error)

	// RunJobs returns every RunJob of a run.
	RunJobs(ctx context.Context, runID string) (execution.RunJobs, error)

	// MarkReadyForInput sets ready_for_input on every NOT_RUNNING interactive RunJob of the
	// run whose inputs are all ready and which is not flagged yet; it returns the ids flagged
	// by this call.
	MarkReadyForInput(ctx context.Context, runID string) ([]string, error)

	// Eligible returns, one row per RunJob, the NOT_RUNNING automatic RunJobs of the run whose
	// inputs are all ready (or which have none).
	Eligible(ctx context.Context, runID string) (execution.RunJobs, error)

	// Claim transitions to RUNNING the RunJobs among ids that are still NOT_RUNNING and
	// automatic, returning only those this call transitioned.
	Claim(ctx context.Context, runID string, ids []string) (execution.RunJobs, error)

	// SetTaskHandle records the dispatch correlation handle.
	SetTaskHandle(ctx context.Context, runJobID, handle string) error

	// Transition moves a RunJob from -> to when its current status is from; message is stored
	// as the RunJob error when not empty. It returns false when the status did not match.
	Transition(ctx context.Context, runJobID string, from, to execution.Status, message string) (bool, error)

	// CancelBlocked cancels NOT_RUNNING RunJobs consuming a resource produced by a FAILED or
	// CANCELLED RunJob, transitively, and returns the cancelled ids.
	CancelBlocked(ctx context.Context, runID string) ([]string, error)

	// HasNonTerminal reports whether any RunJob of the run is NOT_RUNNING or RUNNING.
	HasNonTerminal(ctx context.Context, runID string) (bool, error)

	// FinishRun transitions the run RUNNING -> FINISHED; it returns true only for the call
	// that performed the transition.
	FinishRun(ctx context.Context, runID string) (bool, error)

	// SaveResource inserts or replaces a resource.
	SaveResource(ctx context.Context, resource *execution.Resource) error

	// Resource returns a resource; dao.ErrNotFound when missing.
	Resource(ctx context.Context, id string) (*execution.Resource, error)

	// SetCompatible populates the compatible representation of a resource.
	SetCompatible(ctx context.Context, resourceID, compatURL string) error

	// Inputs returns the input bindings of a RunJob.
	Inputs(ctx context.Context, runJobID string) ([]*execution.Input, error)

	// Outputs returns the output bindings of a RunJob.
	Outputs(ctx context.Context, runJobID string) ([]*execution.Output, error)

	// RunsAwaiting returns ids of RUNNING runs with a NOT_RUNNING RunJob consuming the resource.
	RunsAwaiting(ctx context.Context, resourceID string) ([]string, error)
}
