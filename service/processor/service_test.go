package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/executor"
	"github.com/viant/graphrun/service/messaging/memory"
)

// fakeExecutor fails the first failures[runJobID] executions of a RunJob.
type fakeExecutor struct {
	mux      sync.Mutex
	failures map[string]int
	stale    map[string]bool
	calls    map[string]int
	failed   map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failures: map[string]int{}, stale: map[string]bool{}, calls: map[string]int{}, failed: map[string]string{}}
}

func (f *fakeExecutor) Execute(_ context.Context, task *execution.Task) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.calls[task.RunJobID]++
	if f.stale[task.RunJobID] {
		return executor.ErrNotRunning
	}
	if f.calls[task.RunJobID] <= f.failures[task.RunJobID] {
		return fmt.Errorf("attempt %d failed", f.calls[task.RunJobID])
	}
	return nil
}

func (f *fakeExecutor) Fail(_ context.Context, runJobID string, cause error) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.failed[runJobID] = cause.Error()
	return nil
}

func (f *fakeExecutor) callCount(runJobID string) int {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.calls[runJobID]
}

type outcome struct {
	runJobID string
	failed   bool
}

func TestService_Process(t *testing.T) {
	testCases := []struct {
		name        string
		maxRetries  int
		failures    int
		stale       bool
		expectCalls int
		expect      []outcome
		expectFail  string
	}{
		{name: "success", expectCalls: 1, expect: []outcome{{"rj", false}}},
		{name: "failure without retries", failures: 1, expectCalls: 1, expect: []outcome{{"rj", true}}, expectFail: "attempt 1 failed"},
		{name: "retried until success", maxRetries: 2, failures: 2, expectCalls: 3, expect: []outcome{{"rj", false}}},
		{name: "retries exhausted", maxRetries: 1, failures: 5, expectCalls: 2, expect: []outcome{{"rj", true}}, expectFail: "attempt 2 failed"},
		{name: "stale task", stale: true, expectCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			queue := memory.NewQueue[execution.Task](memory.DefaultConfig())
			fake := newFakeExecutor()
			fake.failures["rj"] = tc.failures
			fake.stale["rj"] = tc.stale

			var mux sync.Mutex
			var outcomes []outcome
			service, err := New(
				WithMessageQueue(queue),
				WithExecutor(fake),
				WithConfig(Config{WorkerCount: 2, MaxTaskRetries: tc.maxRetries, RetryDelay: time.Millisecond}),
				WithLogger(logging.Discard()),
				WithCompletionHandler(func(_ context.Context, task *execution.Task, failed bool) {
					mux.Lock()
					outcomes = append(outcomes, outcome{task.RunJobID, failed})
					mux.Unlock()
				}),
			)
			require.NoError(t, err)
			require.NoError(t, service.Start(context.Background()))
			defer service.Shutdown()

			require.NoError(t, queue.Publish(context.Background(), &execution.Task{ID: "task-1", RunID: "r1", RunJobID: "rj", JobName: "test"}))
			assert.Eventually(t, func() bool { return fake.callCount("rj") == tc.expectCalls }, time.Second, time.Millisecond)
			if len(tc.expect) > 0 {
				assert.Eventually(t, func() bool {
					mux.Lock()
					defer mux.Unlock()
					return len(outcomes) == len(tc.expect)
				}, time.Second, time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)

			mux.Lock()
			assert.Equal(t, tc.expect, outcomes, "reported exactly once")
			mux.Unlock()
			assert.Equal(t, tc.expectCalls, fake.callCount("rj"))
			fake.mux.Lock()
			assert.Equal(t, tc.expectFail, fake.failed["rj"])
			fake.mux.Unlock()
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
	_, err = New(WithExecutor(newFakeExecutor()))
	assert.Error(t, err)

	service, err := New(WithExecutor(newFakeExecutor()), WithMessageQueue(memory.NewQueue[execution.Task](memory.DefaultConfig())), WithWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().WorkerCount, service.config.WorkerCount)
	service.Shutdown()
	service.Shutdown()
}

func TestService_ShutdownStopsWorkers(t *testing.T) {
	queue := memory.NewQueue[execution.Task](memory.DefaultConfig())
	service, err := New(WithExecutor(newFakeExecutor()), WithMessageQueue(queue), WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.NoError(t, service.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		service.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown timed out")
	}
}
