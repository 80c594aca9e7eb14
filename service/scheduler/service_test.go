package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run/memory"
	"github.com/viant/graphrun/service/dao/run/runtest"
	"github.com/viant/graphrun/service/event"
)

type dispatch struct {
	runJobID string
	passID   string
}

type fakeDispatcher struct {
	mux        sync.Mutex
	dispatched []dispatch
	unknown    map[string]bool
	// gate, when set, holds every dispatch until closed, like a full task queue.
	gate chan struct{}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, runJob *execution.RunJob, passID string) (string, error) {
	d.mux.Lock()
	gate := d.gate
	d.mux.Unlock()
	if gate != nil {
		<-gate
	}
	if d.unknown[runJob.JobName] {
		return "", fmt.Errorf("failed to dispatch %s: %w", runJob.WorkflowJobID, extension.ErrUnknownJob)
	}
	d.mux.Lock()
	defer d.mux.Unlock()
	d.dispatched = append(d.dispatched, dispatch{runJobID: runJob.ID, passID: passID})
	return "task-" + runJob.ID, nil
}

// take returns and forgets the dispatches observed so far.
func (d *fakeDispatcher) take() []dispatch {
	d.mux.Lock()
	defer d.mux.Unlock()
	ret := d.dispatched
	d.dispatched = nil
	return ret
}

type recorder struct {
	mux    sync.Mutex
	events []*event.Event
}

func (r *recorder) Publish(_ context.Context, e *event.Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(eventType event.Type) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret := 0
	for _, e := range r.events {
		if e.Type == eventType {
			ret++
		}
	}
	return ret
}

type fixture struct {
	store      *memory.Store
	dispatcher *fakeDispatcher
	events     *recorder
	scheduler  *Service
	runID      string
}

func newFixture(t *testing.T, unknown ...string) *fixture {
	ret := &fixture{store: memory.New(), dispatcher: &fakeDispatcher{unknown: map[string]bool{}}, events: &recorder{}, runID: "r1"}
	for _, name := range unknown {
		ret.dispatcher.unknown[name] = true
	}
	var err error
	ret.scheduler, err = New(ret.store, ret.dispatcher, WithPublisher(ret.events))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ret.store.SaveResource(ctx, runtest.Upload(ret.runID)))
	require.NoError(t, ret.store.CreateRun(ctx, runtest.Diamond(ret.runID)))
	return ret
}

func (f *fixture) uploadConverted(t *testing.T) {
	require.NoError(t, f.store.SetCompatible(context.Background(), runtest.UploadID(f.runID), "mem://localhost/compat/upload"))
}

// complete plays the role of a job body and reports the outcome to the scheduler.
func (f *fixture) complete(t *testing.T, d dispatch, failed bool) {
	f.finish(t, d, failed)
	f.scheduler.Complete(context.Background(), d.passID, d.runJobID, failed)
	f.scheduler.Wait()
}

// finish writes the final status of a dispatched RunJob.
func (f *fixture) finish(t *testing.T, d dispatch, failed bool) {
	ctx := context.Background()
	if failed {
		ok, err := f.store.Transition(ctx, d.runJobID, execution.StatusRunning, execution.StatusFailed, "boom")
		require.NoError(t, err)
		require.True(t, ok)
	} else {
		outputs, err := f.store.Outputs(ctx, d.runJobID)
		require.NoError(t, err)
		for _, output := range outputs {
			require.NoError(t, f.store.SetCompatible(ctx, output.ResourceID, "mem://localhost/compat/"+output.ResourceID))
		}
		ok, err := f.store.Transition(ctx, d.runJobID, execution.StatusRunning, execution.StatusFinished, "")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func (f *fixture) status(t *testing.T, node string) execution.Status {
	runJob, err := f.store.RunJob(context.Background(), runtest.ID(f.runID, node))
	require.NoError(t, err)
	return runJob.Status
}

func ids(dispatches []dispatch) []string {
	var ret []string
	for _, d := range dispatches {
		ret = append(ret, d.runJobID)
	}
	return ret
}

func TestService_Advance_Diamond(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := func(node string) string { return runtest.ID(f.runID, node) }

	outcome, err := f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome, "upload not converted yet")
	assert.Empty(t, f.dispatcher.take())

	f.uploadConverted(t)
	outcome, err = f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, Dispatched, outcome)
	first := f.dispatcher.take()
	require.Equal(t, []string{id("a")}, ids(first))
	runJob, err := f.store.RunJob(ctx, id("a"))
	require.NoError(t, err)
	assert.Equal(t, "task-"+id("a"), runJob.TaskHandle)

	outcome, err = f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome, "a is in flight")

	f.complete(t, first[0], false)
	fanOut := f.dispatcher.take()
	assert.ElementsMatch(t, []string{id("b"), id("c")}, ids(fanOut))
	assert.Equal(t, fanOut[0].passID, fanOut[1].passID, "one pass, one group")
	assert.Equal(t, 1, f.events.count(event.TypeReadyForInput))
	m, err := f.store.RunJob(ctx, id("m"))
	require.NoError(t, err)
	assert.True(t, m.ReadyForInput)
	assert.Equal(t, execution.StatusNotRunning, m.Status, "interactive jobs are never dispatched")

	f.complete(t, fanOut[0], false)
	assert.Empty(t, f.dispatcher.take(), "fan-in waits for every member")
	f.complete(t, fanOut[1], false)
	fanIn := f.dispatcher.take()
	require.Equal(t, []string{id("d")}, ids(fanIn))

	f.complete(t, fanIn[0], false)
	run, err := f.store.Run(ctx, f.runID)
	require.NoError(t, err)
	assert.False(t, run.IsFinished(), "m still awaits input")

	ok, err := f.store.Transition(ctx, id("m"), execution.StatusNotRunning, execution.StatusRunning, "")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.store.Transition(ctx, id("m"), execution.StatusRunning, execution.StatusFinished, "")
	require.NoError(t, err)
	require.True(t, ok)

	outcome, err = f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, Finished, outcome)
	outcome, err = f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)
	assert.Equal(t, 1, f.events.count(event.TypeRunFinished))
	assert.Equal(t, 4, f.events.count(event.TypeDispatched))
	assert.Equal(t, 4, f.events.count(event.TypeCompleted))
	assert.Equal(t, 0, f.scheduler.groups.Len())
}

func TestService_Advance_ExactlyOnce(t *testing.T) {
	testCases := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		expect Outcome
	}{
		{
			name:   "dispatch",
			setup:  func(t *testing.T, f *fixture) { f.uploadConverted(t) },
			expect: Dispatched,
		},
		{
			name: "finish",
			setup: func(t *testing.T, f *fixture) {
				ctx := context.Background()
				for _, node := range []string{"a", "b", "c", "d", "m"} {
					ok, err := f.store.Transition(ctx, runtest.ID(f.runID, node), execution.StatusNotRunning, execution.StatusRunning, "")
					require.NoError(t, err)
					require.True(t, ok)
					ok, err = f.store.Transition(ctx, runtest.ID(f.runID, node), execution.StatusRunning, execution.StatusFinished, "")
					require.NoError(t, err)
					require.True(t, ok)
				}
			},
			expect: Finished,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(t, f)

			const passes = 16
			outcomes := make(chan Outcome, passes)
			var wg sync.WaitGroup
			for i := 0; i < passes; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					outcome, err := f.scheduler.Advance(context.Background(), f.runID)
					assert.NoError(t, err)
					outcomes <- outcome
				}()
			}
			wg.Wait()
			close(outcomes)

			counts := map[Outcome]int{}
			for outcome := range outcomes {
				counts[outcome]++
			}
			assert.Equal(t, 1, counts[tc.expect])
			assert.Equal(t, passes-1, counts[Idle])
			if tc.expect == Dispatched {
				assert.Len(t, f.dispatcher.take(), 1)
			}
			if tc.expect == Finished {
				assert.Equal(t, 1, f.events.count(event.TypeRunFinished))
			}
		})
	}
}

func TestService_Advance_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("job failure cancels downstream", func(t *testing.T) {
		f := newFixture(t)
		f.uploadConverted(t)
		_, err := f.scheduler.Advance(ctx, f.runID)
		require.NoError(t, err)
		first := f.dispatcher.take()
		require.Len(t, first, 1)

		f.complete(t, first[0], true)
		assert.Empty(t, f.dispatcher.take())
		assert.Equal(t, execution.StatusFailed, f.status(t, "a"))
		for _, node := range []string{"b", "c", "d", "m"} {
			assert.Equal(t, execution.StatusCancelled, f.status(t, node), node)
		}
		run, err := f.store.Run(ctx, f.runID)
		require.NoError(t, err)
		assert.True(t, run.IsFinished())
	})

	t.Run("sibling branch keeps running", func(t *testing.T) {
		f := newFixture(t)
		f.uploadConverted(t)
		_, err := f.scheduler.Advance(ctx, f.runID)
		require.NoError(t, err)
		f.complete(t, f.dispatcher.take()[0], false)
		fanOut := f.dispatcher.take()
		require.Len(t, fanOut, 2)

		f.complete(t, fanOut[0], true)
		f.complete(t, fanOut[1], false)
		assert.Empty(t, f.dispatcher.take())
		assert.Equal(t, execution.StatusCancelled, f.status(t, "d"))
		assert.Equal(t, execution.StatusNotRunning, f.status(t, "m"), "m does not depend on the failed branch")
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t, "test.a")
		f.uploadConverted(t)
		outcome, err := f.scheduler.Advance(ctx, f.runID)
		f.scheduler.Wait()
		assert.Equal(t, Dispatched, outcome)
		require.Error(t, err)
		assert.True(t, errors.Is(err, extension.ErrUnknownJob))
		assert.Equal(t, execution.StatusFailed, f.status(t, "a"))
		assert.Equal(t, execution.StatusCancelled, f.status(t, "d"))
		run, err := f.store.Run(ctx, f.runID)
		require.NoError(t, err)
		assert.True(t, run.IsFinished())
		assert.Equal(t, 1, f.events.count(event.TypeRunFinished))
	})

	t.Run("unknown run", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.scheduler.Advance(ctx, "missing")
		assert.Error(t, err)
	})
}

func TestService_Complete_ReleasesReporter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.uploadConverted(t)
	_, err := f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	first := f.dispatcher.take()
	require.Len(t, first, 1)

	gate := make(chan struct{})
	f.dispatcher.mux.Lock()
	f.dispatcher.gate = gate
	f.dispatcher.mux.Unlock()

	f.finish(t, first[0], false)
	reported := make(chan struct{})
	go func() {
		f.scheduler.Complete(ctx, first[0].passID, first[0].runJobID, false)
		close(reported)
	}()
	select {
	case <-reported:
	case <-time.After(time.Second):
		t.Fatal("complete waited for the next dispatch")
	}
	assert.Empty(t, f.dispatcher.take(), "the next pass is held by the dispatcher")

	close(gate)
	f.scheduler.Wait()
	assert.ElementsMatch(t, []string{runtest.ID(f.runID, "b"), runtest.ID(f.runID, "c")}, ids(f.dispatcher.take()))
}

func TestService_OpenPasses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assert.Empty(t, f.scheduler.OpenPasses())

	f.uploadConverted(t)
	_, err := f.scheduler.Advance(ctx, f.runID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{f.runID: 1}, f.scheduler.OpenPasses())

	first := f.dispatcher.take()
	require.Len(t, first, 1)
	f.complete(t, first[0], false)
	assert.Equal(t, map[string]int{f.runID: 2}, f.scheduler.OpenPasses())

	second := f.dispatcher.take()
	require.Len(t, second, 2)
	f.complete(t, second[0], false)
	assert.Equal(t, map[string]int{f.runID: 1}, f.scheduler.OpenPasses())
}

func TestNew(t *testing.T) {
	_, err := New(nil, &fakeDispatcher{})
	assert.Error(t, err)
	_, err = New(memory.New(), nil)
	assert.Error(t, err)
}
