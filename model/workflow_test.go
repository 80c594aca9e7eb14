package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/graphrun/model/job"
	"gopkg.in/yaml.v3"
)

func testSpecs() SpecLookup {
	specs := map[string]*job.Spec{
		"load": {Name: "load", Outputs: []*job.PortType{{Name: "output", ResourceTypes: []string{"image/png"}}}},
		"binarize": {Name: "binarize",
			Inputs:  []*job.PortType{{Name: "image", ResourceTypes: []string{"image/*"}}},
			Outputs: []*job.PortType{{Name: "output", ResourceTypes: []string{"image/onebit+png"}}}},
		"segment": {Name: "segment",
			Inputs:  []*job.PortType{{Name: "image", ResourceTypes: []string{"image/onebit+png"}}},
			Outputs: []*job.PortType{{Name: "data", ResourceTypes: []string{"application/json"}}}},
		"json": {Name: "json",
			Inputs:  []*job.PortType{{Name: "input", ResourceTypes: []string{"application/json"}}},
			Outputs: []*job.PortType{{Name: "output", ResourceTypes: []string{"application/json"}}}},
	}
	return func(name string) (*job.Spec, error) {
		if spec, ok := specs[name]; ok {
			return spec, nil
		}
		return nil, fmt.Errorf("unknown job %q", name)
	}
}

func TestWorkflow_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		workflow    func() *Workflow
		expectIssue bool
	}{
		{
			name: "valid chain",
			workflow: func() *Workflow {
				wf := NewWorkflow("chain")
				wf.AddJob("a", "load")
				wf.AddJob("b", "binarize")
				wf.AddJob("c", "segment")
				return wf.Connect("a.output", "b.image").Connect("b.output", "c.image")
			},
		},
		{
			name: "unknown job",
			workflow: func() *Workflow {
				wf := NewWorkflow("unknown")
				wf.AddJob("a", "missing")
				return wf
			},
			expectIssue: true,
		},
		{
			name: "duplicate id",
			workflow: func() *Workflow {
				wf := NewWorkflow("dup")
				wf.AddJob("a", "load")
				wf.AddJob("a", "load")
				return wf
			},
			expectIssue: true,
		},
		{
			name: "incompatible ports",
			workflow: func() *Workflow {
				wf := NewWorkflow("types")
				wf.AddJob("a", "load")
				wf.AddJob("c", "segment")
				return wf.Connect("a.output", "c.image")
			},
			expectIssue: true,
		},
		{
			name: "unknown port",
			workflow: func() *Workflow {
				wf := NewWorkflow("ports")
				wf.AddJob("a", "load")
				wf.AddJob("b", "binarize")
				return wf.Connect("a.result", "b.image")
			},
			expectIssue: true,
		},
		{
			name: "two connections into one input",
			workflow: func() *Workflow {
				wf := NewWorkflow("fanin")
				wf.AddJob("a", "load")
				wf.AddJob("b", "load")
				wf.AddJob("c", "binarize")
				return wf.Connect("a.output", "c.image").Connect("b.output", "c.image")
			},
			expectIssue: true,
		},
		{
			name: "cycle",
			workflow: func() *Workflow {
				wf := NewWorkflow("cycle")
				wf.AddJob("x", "json")
				wf.AddJob("y", "json")
				return wf.Connect("x.output", "y.input").Connect("y.output", "x.input")
			},
			expectIssue: true,
		},
		{
			name:        "empty",
			workflow:    func() *Workflow { return NewWorkflow("empty") },
			expectIssue: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			issues := tc.workflow().Validate(testSpecs())
			if tc.expectIssue {
				assert.NotEmpty(t, issues)
				return
			}
			assert.Empty(t, issues)
		})
	}
}

func TestWorkflow_TopologicalOrder(t *testing.T) {
	wf := NewWorkflow("fanout")
	wf.AddJob("d", "load")
	wf.AddJob("f", "binarize")
	wf.AddJob("e", "binarize")
	wf.AddJob("g", "segment")
	wf.Connect("d.output", "e.image").Connect("d.output", "f.image").Connect("e.output", "g.image")

	order, err := wf.TopologicalOrder()
	assert.NoError(t, err)
	assert.Equal(t, []string{"d", "e", "f", "g"}, order)
}

func TestConnection_UnmarshalYAML(t *testing.T) {
	var wf Workflow
	err := yaml.Unmarshal([]byte(`
name: flow
jobs:
  - id: a.load
    job: load
  - id: b
    job: binarize
connections:
  - from: a.load.output
    to:
      job: b
      port: image
`), &wf)
	assert.NoError(t, err)
	assert.Len(t, wf.Connections, 1)
	assert.Equal(t, PortRef{Job: "a.load", Port: "output"}, wf.Connections[0].From)
	assert.Equal(t, PortRef{Job: "b", Port: "image"}, wf.Connections[0].To)
	assert.Empty(t, wf.Validate(testSpecs()))
}
