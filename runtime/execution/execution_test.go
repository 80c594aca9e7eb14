package execution

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/model"
	"github.com/viant/graphrun/model/job"
)

func TestStatus_Transitions(t *testing.T) {
	testCases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusNotRunning, StatusRunning, true},
		{StatusNotRunning, StatusCancelled, true},
		{StatusNotRunning, StatusFinished, false},
		{StatusNotRunning, StatusFailed, false},
		{StatusRunning, StatusFinished, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusNotRunning, false},
		{StatusFinished, StatusRunning, false},
		{StatusFailed, StatusFinished, false},
		{StatusCancelled, StatusRunning, false},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
			err := CheckTransition(tc.from, tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
}

func TestResource_IsReady(t *testing.T) {
	var missing *Resource
	assert.False(t, missing.IsReady())
	assert.False(t, (&Resource{RawURL: "mem://localhost/raw"}).IsReady())
	assert.True(t, (&Resource{CompatURL: "mem://localhost/compat"}).IsReady())
}

func TestRunJobs_Distinct(t *testing.T) {
	a, b := &RunJob{ID: "a"}, &RunJob{ID: "b"}
	jobs := RunJobs{a, b, a, a, b}
	assert.Equal(t, []string{"a", "b"}, jobs.Distinct().IDs())
}

func lookup(name string) (*job.Spec, error) {
	specs := map[string]*job.Spec{
		"source": {Name: "source", Inputs: []*job.PortType{{Name: "in"}}, Outputs: []*job.PortType{{Name: "out", ResourceTypes: []string{"image/png"}}}},
		"manual": {Name: "manual", Interactive: true, Inputs: []*job.PortType{{Name: "in"}}, Outputs: []*job.PortType{{Name: "out"}}, Settings: map[string]interface{}{"mode": "crop", "zoom": 1}},
	}
	if spec, ok := specs[name]; ok {
		return spec, nil
	}
	return nil, fmt.Errorf("unknown job %s", name)
}

func TestNewPlan(t *testing.T) {
	wf := model.NewWorkflow("plan")
	wf.AddJob("a", "source")
	wf.AddJob("b", "manual").WithSetting("zoom", 2)
	wf.Connect("a.out", "b.in")

	plan, err := NewPlan(wf, lookup, map[string]string{"a.in": "uploaded-1"}, "mem://localhost/storage")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, plan.Run.Status)
	require.Len(t, plan.RunJobs, 2)

	byNode := plan.RunJobs.ByWorkflowJob()
	assert.False(t, byNode["a"].NeedsInput)
	assert.True(t, byNode["b"].NeedsInput)
	assert.Equal(t, StatusNotRunning, byNode["b"].Status)
	assert.Equal(t, map[string]interface{}{"mode": "crop", "zoom": 2}, byNode["b"].Settings)

	require.Len(t, plan.Outputs, 2)
	require.Len(t, plan.Inputs, 2)
	inputs := map[string]*Input{}
	for _, input := range plan.Inputs {
		inputs[input.RunJobID] = input
	}
	assert.Equal(t, "uploaded-1", inputs[byNode["a"].ID].ResourceID)

	var aOut *Output
	for _, output := range plan.Outputs {
		if output.RunJobID == byNode["a"].ID {
			aOut = output
		}
	}
	require.NotNil(t, aOut)
	assert.Equal(t, aOut.ResourceID, inputs[byNode["b"].ID].ResourceID)
	for _, resource := range plan.Resources {
		assert.False(t, resource.IsReady())
		assert.Contains(t, resource.RawURL, plan.Run.ID)
	}
}

func TestNewPlan_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		bindings map[string]string
	}{
		{name: "unbound input", bindings: nil},
		{name: "unknown binding", bindings: map[string]string{"a.in": "r1", "b.in": "r2"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wf := model.NewWorkflow("plan")
			wf.AddJob("a", "source")
			wf.AddJob("b", "manual")
			wf.Connect("a.out", "b.in")
			_, err := NewPlan(wf, lookup, tc.bindings, "mem://localhost/storage")
			assert.Error(t, err)
		})
	}
}
