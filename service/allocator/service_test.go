package allocator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run/memory"
	"github.com/viant/graphrun/service/dao/run/runtest"
	"github.com/viant/graphrun/service/scheduler"
)

type advancer struct {
	mux   sync.Mutex
	calls map[string]int
}

func (a *advancer) Advance(_ context.Context, runID string) (scheduler.Outcome, error) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.calls[runID]++
	return scheduler.Idle, nil
}

func (a *advancer) count(runID string) int {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.calls[runID]
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, runID := range []string{"open", "done"} {
		require.NoError(t, store.SaveResource(ctx, runtest.Upload(runID)))
		require.NoError(t, store.CreateRun(ctx, runtest.Diamond(runID)))
	}
	for _, runJob := range runtest.Diamond("done").RunJobs {
		_, err := store.Claim(ctx, "done", []string{runJob.ID})
		require.NoError(t, err)
	}
	// interactive RunJobs are never claimed; cancel it through its blocked producer instead
	ok, err := store.Transition(ctx, runtest.ID("done", "a"), execution.StatusRunning, execution.StatusFailed, "boom")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.CancelBlocked(ctx, "done")
	require.NoError(t, err)
	for _, node := range []string{"b", "c", "d"} {
		_, err = store.Transition(ctx, runtest.ID("done", node), execution.StatusRunning, execution.StatusFinished, "")
		require.NoError(t, err)
	}
	finished, err := store.FinishRun(ctx, "done")
	require.NoError(t, err)
	require.True(t, finished)

	adv := &advancer{calls: map[string]int{}}
	service := New(store, adv, DefaultConfig())
	outcomes, err := service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]scheduler.Outcome{"open": scheduler.Idle}, outcomes)
	assert.Equal(t, 0, adv.count("done"))
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveResource(ctx, runtest.Upload("r1")))
	require.NoError(t, store.CreateRun(ctx, runtest.Diamond("r1")))

	adv := &advancer{calls: map[string]int{}}
	service := New(store, adv, Config{PollingInterval: time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	assert.Eventually(t, func() bool { return adv.count("r1") >= 2 }, time.Second, time.Millisecond)
	service.Shutdown()
	service.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}

	disabled := New(store, adv, Config{})
	assert.NoError(t, disabled.Start(ctx))
}

func TestService_Recover(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, runID := range []string{"orphaned", "clean"} {
		require.NoError(t, store.SaveResource(ctx, runtest.Upload(runID)))
		require.NoError(t, store.CreateRun(ctx, runtest.Diamond(runID)))
	}
	_, err := store.Claim(ctx, "orphaned", []string{runtest.ID("orphaned", "a")})
	require.NoError(t, err)

	adv := &advancer{calls: map[string]int{}}
	service := New(store, adv, Config{})
	runIDs, err := service.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphaned"}, runIDs)

	a, err := store.RunJob(ctx, runtest.ID("orphaned", "a"))
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, a.Status)
	assert.Equal(t, LostTaskMessage, a.Error)
	b, err := store.RunJob(ctx, runtest.ID("orphaned", "b"))
	require.NoError(t, err)
	assert.Equal(t, execution.StatusNotRunning, b.Status)

	assert.Equal(t, 0, adv.count("orphaned"))
	require.NoError(t, service.Start(ctx))
	assert.Equal(t, 1, adv.count("orphaned"))
	assert.Equal(t, 0, adv.count("clean"))

	require.NoError(t, service.Start(ctx))
	assert.Equal(t, 1, adv.count("orphaned"))
}
