package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/job/builtin"
	"github.com/viant/graphrun/service/messaging/memory"
)

func TestService_Dispatch(t *testing.T) {
	ctx := context.Background()
	registry, err := extension.NewRegistry(builtin.Jobs()...)
	require.NoError(t, err)
	queue := memory.NewQueue[execution.Task](memory.DefaultConfig())
	service := New(registry, queue)

	testCases := []struct {
		name      string
		runJob    *execution.RunJob
		expectErr error
	}{
		{
			name:   "registered job",
			runJob: &execution.RunJob{ID: "rj-1", RunID: "r1", WorkflowJobID: "a", JobName: builtin.CopyName},
		},
		{
			name:      "unknown job",
			runJob:    &execution.RunJob{ID: "rj-2", RunID: "r1", WorkflowJobID: "b", JobName: "gamera.binarize"},
			expectErr: extension.ErrUnknownJob,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handle, err := service.Dispatch(ctx, tc.runJob, "pass-1")
			if tc.expectErr != nil {
				assert.True(t, errors.Is(err, tc.expectErr))
				assert.Empty(t, handle)
				assert.Equal(t, 0, queue.Size())
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(handle, "task-"))

			message, err := queue.Consume(ctx)
			require.NoError(t, err)
			task := message.T()
			assert.Equal(t, handle, task.ID)
			assert.Equal(t, "pass-1", task.PassID)
			assert.Equal(t, tc.runJob.ID, task.RunJobID)
			assert.Equal(t, tc.runJob.JobName, task.JobName)
			assert.False(t, task.ScheduledAt.IsZero())
		})
	}
}
