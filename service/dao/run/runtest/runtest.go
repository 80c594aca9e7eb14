// Package runtest provides a conformance suite shared by every run.Store implementation.
package runtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao"
	"github.com/viant/graphrun/service/dao/run"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) run.Store

// UploadID returns the id of the uploaded resource bound to the source job of Diamond(runID).
func UploadID(runID string) string { return runID + "-upload" }

// ID returns the RunJob id of a node of Diamond(runID).
func ID(runID, node string) string { return runID + "-" + node }

// OutputID returns the resource id produced by a node of Diamond(runID).
func OutputID(runID, node string) string { return runID + "-" + node + "-out" }

// Diamond builds a run plan:
//
//	upload -> a -> b -> d
//	          a -> c -> d
//	          a -> m (interactive)
func Diamond(runID string) *execution.Plan {
	now := time.Now().UTC().Truncate(time.Millisecond)
	plan := &execution.Plan{Run: &execution.WorkflowRun{ID: runID, Workflow: "diamond", Status: execution.RunStatusRunning, CreatedAt: now}}
	addJob := func(node string, interactive bool, inputs ...string) {
		plan.RunJobs = append(plan.RunJobs, &execution.RunJob{
			ID:            ID(runID, node),
			RunID:         runID,
			WorkflowJobID: node,
			JobName:       "test." + node,
			Status:        execution.StatusNotRunning,
			NeedsInput:    interactive,
			Settings:      map[string]interface{}{"node": node},
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		for i, resourceID := range inputs {
			plan.Inputs = append(plan.Inputs, &execution.Input{ID: ID(runID, node) + "-in" + string(rune('0'+i)), RunJobID: ID(runID, node), Port: "in" + string(rune('0'+i)), ResourceID: resourceID})
		}
		plan.Resources = append(plan.Resources, &execution.Resource{ID: OutputID(runID, node), Name: node + ".out", RunID: runID, ResourceType: "application/json", RawURL: "mem://localhost/runs/" + runID + "/" + node, CreatedAt: now})
		plan.Outputs = append(plan.Outputs, &execution.Output{ID: ID(runID, node) + "-output", RunJobID: ID(runID, node), Port: "out", ResourceID: OutputID(runID, node)})
	}
	addJob("a", false, UploadID(runID))
	addJob("b", false, OutputID(runID, "a"))
	addJob("c", false, OutputID(runID, "a"))
	addJob("d", false, OutputID(runID, "b"), OutputID(runID, "c"))
	addJob("m", true, OutputID(runID, "a"))
	return plan
}

// Upload returns the uploaded resource of Diamond(runID), not yet compatible.
func Upload(runID string) *execution.Resource {
	return &execution.Resource{ID: UploadID(runID), Name: "scan.png", ResourceType: "image/png", RawURL: "mem://localhost/uploads/" + runID, CreatedAt: time.Now().UTC()}
}

// Exercise runs the suite against stores created by factory.
func Exercise(t *testing.T, factory Factory) {
	t.Run("create and load", func(t *testing.T) { testCreate(t, factory(t)) })
	t.Run("readiness", func(t *testing.T) { testReadiness(t, factory(t)) })
	t.Run("concurrent claim", func(t *testing.T) { testConcurrentClaim(t, factory(t)) })
	t.Run("cancel blocked", func(t *testing.T) { testCancelBlocked(t, factory(t)) })
	t.Run("transition", func(t *testing.T) { testTransition(t, factory(t)) })
	t.Run("runs awaiting", func(t *testing.T) { testRunsAwaiting(t, factory(t)) })
}

func create(t *testing.T, store run.Store, runID string) {
	ctx := context.Background()
	require.NoError(t, store.SaveResource(ctx, Upload(runID)))
	require.NoError(t, store.CreateRun(ctx, Diamond(runID)))
}

func testCreate(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")

	err := store.CreateRun(ctx, Diamond("r1"))
	assert.True(t, errors.Is(err, dao.ErrAlreadyExists), err)

	loaded, err := store.Run(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, execution.RunStatusRunning, loaded.Status)
	assert.Equal(t, "diamond", loaded.Workflow)

	_, err = store.Run(ctx, "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	_, err = store.RunJob(ctx, "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	_, err = store.Resource(ctx, "missing")
	assert.True(t, errors.Is(err, dao.ErrNotFound))

	runJobs, err := store.RunJobs(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, runJobs, 5)

	m, err := store.RunJob(ctx, ID("r1", "m"))
	require.NoError(t, err)
	assert.True(t, m.NeedsInput)
	assert.Equal(t, "m", m.Settings["node"])

	inputs, err := store.Inputs(ctx, ID("r1", "d"))
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
	outputs, err := store.Outputs(ctx, ID("r1", "a"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, OutputID("r1", "a"), outputs[0].ResourceID)

	create(t, store, "r2")
	_, err = store.FinishRun(ctx, "r2")
	require.NoError(t, err)
	finished, err := store.ListRuns(ctx, dao.NewParameter("Status", string(execution.RunStatusFinished)))
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, "r2", finished[0].ID)
	assert.NotNil(t, finished[0].FinishedAt)
	all, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testReadiness(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")

	eligible, err := store.Eligible(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, eligible, "upload is not compatible yet")

	require.NoError(t, store.SetCompatible(ctx, UploadID("r1"), "mem://localhost/compat/r1"))
	eligible, err = store.Eligible(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{ID("r1", "a")}, eligible.IDs())

	claimed, err := store.Claim(ctx, "r1", []string{ID("r1", "a"), ID("r1", "a"), ID("r1", "m")})
	require.NoError(t, err)
	assert.Equal(t, []string{ID("r1", "a")}, claimed.IDs(), "interactive RunJobs are never claimed")
	assert.Equal(t, execution.StatusRunning, claimed[0].Status)
	claimed, err = store.Claim(ctx, "r1", []string{ID("r1", "a")})
	require.NoError(t, err)
	assert.Empty(t, claimed)

	require.NoError(t, store.SetTaskHandle(ctx, ID("r1", "a"), "task-1"))
	ok, err := store.Transition(ctx, ID("r1", "a"), execution.StatusRunning, execution.StatusFinished, "")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, store.SetCompatible(ctx, OutputID("r1", "a"), "mem://localhost/compat/a"))

	eligible, err = store.Eligible(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ID("r1", "b"), ID("r1", "c")}, eligible.IDs())

	marked, err := store.MarkReadyForInput(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{ID("r1", "m")}, marked)
	marked, err = store.MarkReadyForInput(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, marked, "ready for input is flagged once")

	m, err := store.RunJob(ctx, ID("r1", "m"))
	require.NoError(t, err)
	assert.True(t, m.ReadyForInput)
	assert.Equal(t, execution.StatusNotRunning, m.Status)
	a, err := store.RunJob(ctx, ID("r1", "a"))
	require.NoError(t, err)
	assert.Equal(t, "task-1", a.TaskHandle)

	_, err = store.Claim(ctx, "r1", []string{ID("r1", "b")})
	require.NoError(t, err)
	eligible, err = store.Eligible(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{ID("r1", "c")}, eligible.IDs(), "d waits for both producers")

	hasOpen, err := store.HasNonTerminal(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, hasOpen)
}

func testConcurrentClaim(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")
	ids := []string{ID("r1", "a"), ID("r1", "b"), ID("r1", "c"), ID("r1", "d")}

	var mux sync.Mutex
	var total []string
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Claim(ctx, "r1", ids)
			assert.NoError(t, err)
			mux.Lock()
			total = append(total, claimed.IDs()...)
			mux.Unlock()
		}()
	}
	wg.Wait()
	assert.ElementsMatch(t, ids, total, "every RunJob is claimed by exactly one caller")
}

func testCancelBlocked(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")
	require.NoError(t, store.SetCompatible(ctx, UploadID("r1"), "mem://localhost/compat/r1"))
	_, err := store.Claim(ctx, "r1", []string{ID("r1", "a")})
	require.NoError(t, err)

	cancelled, err := store.CancelBlocked(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, cancelled)

	ok, err := store.Transition(ctx, ID("r1", "a"), execution.StatusRunning, execution.StatusFailed, "boom")
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, err = store.CancelBlocked(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ID("r1", "b"), ID("r1", "c"), ID("r1", "d"), ID("r1", "m")}, cancelled)

	a, err := store.RunJob(ctx, ID("r1", "a"))
	require.NoError(t, err)
	assert.Equal(t, "boom", a.Error)
	d, err := store.RunJob(ctx, ID("r1", "d"))
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCancelled, d.Status)
	assert.NotEmpty(t, d.Error)

	hasOpen, err := store.HasNonTerminal(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, hasOpen)

	finished, err := store.FinishRun(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, finished)
	finished, err = store.FinishRun(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, finished, "only one caller finishes the run")
}

func testTransition(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")

	_, err := store.Transition(ctx, ID("r1", "a"), execution.StatusNotRunning, execution.StatusFinished, "")
	assert.True(t, errors.Is(err, execution.ErrInvalidTransition))

	ok, err := store.Transition(ctx, ID("r1", "a"), execution.StatusRunning, execution.StatusFinished, "")
	require.NoError(t, err)
	assert.False(t, ok, "status predicate does not match")

	ok, err = store.Transition(ctx, ID("r1", "m"), execution.StatusNotRunning, execution.StatusRunning, "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Transition(ctx, ID("r1", "m"), execution.StatusNotRunning, execution.StatusRunning, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Transition(ctx, "missing", execution.StatusNotRunning, execution.StatusRunning, "")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
}

func testRunsAwaiting(t *testing.T, store run.Store) {
	ctx := context.Background()
	create(t, store, "r1")
	create(t, store, "r2")

	awaiting, err := store.RunsAwaiting(ctx, UploadID("r1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, awaiting)

	awaiting, err = store.RunsAwaiting(ctx, OutputID("r2", "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, awaiting)

	require.NoError(t, store.SetCompatible(ctx, UploadID("r1"), "mem://localhost/compat/r1"))
	_, err = store.Claim(ctx, "r1", []string{ID("r1", "a")})
	require.NoError(t, err)
	awaiting, err = store.RunsAwaiting(ctx, UploadID("r1"))
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	upload, err := store.Resource(ctx, UploadID("r1"))
	require.NoError(t, err)
	assert.True(t, upload.IsReady())
}
