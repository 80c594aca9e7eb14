// Package dispatcher hands claimed RunJobs to workers. Dispatch resolves the job
// through the registry, allocates the task handle and enqueues the task; it never
// waits for the job body.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/internal/idgen"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/messaging"
)

// Service dispatches RunJobs onto a task queue
type Service struct {
	registry *extension.Registry
	queue    messaging.Queue[execution.Task]
}

// Dispatch enqueues runJob for execution and returns its task handle. An unregistered job
// yields an error wrapping extension.ErrUnknownJob and nothing is enqueued.
func (s *Service) Dispatch(ctx context.Context, runJob *execution.RunJob, passID string) (string, error) {
	if _, err := s.registry.Lookup(runJob.JobName); err != nil {
		return "", fmt.Errorf("failed to dispatch %s (%s): %w", runJob.WorkflowJobID, runJob.ID, err)
	}
	task := &execution.Task{
		ID:          idgen.NewWithPrefix("task"),
		RunID:       runJob.RunID,
		RunJobID:    runJob.ID,
		JobName:     runJob.JobName,
		PassID:      passID,
		ScheduledAt: clock.Now(),
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", runJob.ID, err)
	}
	return task.ID, nil
}

// New creates a dispatcher
func New(registry *extension.Registry, queue messaging.Queue[execution.Task]) *Service {
	return &Service{registry: registry, queue: queue}
}
