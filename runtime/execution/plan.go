package execution

import (
	"errors"
	"fmt"

	"github.com/viant/afs/url"
	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/internal/idgen"
	"github.com/viant/graphrun/model"
)

// Plan is everything persisted atomically when a run is created: the run, one RunJob per
// WorkflowJob and the resource bindings between them.
type Plan struct {
	Run       *WorkflowRun `json:"run"`
	RunJobs   RunJobs      `json:"runJobs"`
	Resources []*Resource  `json:"resources,omitempty"`
	Inputs    []*Input     `json:"inputs,omitempty"`
	Outputs   []*Output    `json:"outputs,omitempty"`
}

// NewPlan expands a validated workflow into run state. Every output port gets a fresh,
// not yet ready Resource; every input port is bound either to the Resource of the
// upstream output it is connected to, or to an existing resource supplied in bindings
// keyed by "<workflowJobID>.<port>". Output resources are located under baseURL.
func NewPlan(wf *model.Workflow, lookup model.SpecLookup, bindings map[string]string, baseURL string) (*Plan, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow was nil")
	}
	if issues := wf.Validate(lookup); len(issues) > 0 {
		return nil, fmt.Errorf("invalid workflow %s: %w", wf.Name, errors.Join(issues...))
	}
	order, err := wf.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	run := &WorkflowRun{ID: idgen.New(), Workflow: wf.Name, Status: RunStatusRunning, CreatedAt: now}
	plan := &Plan{Run: run}
	produced := map[model.PortRef]string{}
	used := map[string]bool{}

	for _, nodeID := range order {
		node := wf.Job(nodeID)
		spec, err := lookup(node.Job)
		if err != nil {
			return nil, err
		}
		runJob := &RunJob{
			ID:            idgen.New(),
			RunID:         run.ID,
			WorkflowJobID: node.ID,
			JobName:       spec.Name,
			Status:        StatusNotRunning,
			NeedsInput:    spec.Interactive,
			Settings:      mergeSettings(spec.Settings, node.Settings),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		plan.RunJobs = append(plan.RunJobs, runJob)

		for _, port := range spec.Inputs {
			ref := model.PortRef{Job: node.ID, Port: port.Name}
			var resourceID string
			if conn := wf.IncomingConnection(ref); conn != nil {
				resourceID = produced[conn.From]
			} else if bound, ok := bindings[ref.String()]; ok && bound != "" {
				resourceID = bound
				used[ref.String()] = true
			} else {
				return nil, fmt.Errorf("input port %v is neither connected nor bound to a resource", ref)
			}
			plan.Inputs = append(plan.Inputs, &Input{ID: idgen.New(), RunJobID: runJob.ID, Port: port.Name, ResourceID: resourceID})
		}

		for _, port := range spec.Outputs {
			resource := &Resource{
				ID:        idgen.New(),
				Name:      node.ID + "." + port.Name,
				RunID:     run.ID,
				CreatedAt: now,
			}
			if len(port.ResourceTypes) > 0 {
				resource.ResourceType = port.ResourceTypes[0]
			}
			resource.RawURL = url.Join(baseURL, "runs", run.ID, resource.ID)
			plan.Resources = append(plan.Resources, resource)
			plan.Outputs = append(plan.Outputs, &Output{ID: idgen.New(), RunJobID: runJob.ID, Port: port.Name, ResourceID: resource.ID})
			produced[model.PortRef{Job: node.ID, Port: port.Name}] = resource.ID
		}
	}

	for key := range bindings {
		if !used[key] {
			return nil, fmt.Errorf("binding %s does not address an unconnected input port", key)
		}
	}
	return plan, nil
}

func mergeSettings(defaults, overrides map[string]interface{}) map[string]interface{} {
	if len(defaults) == 0 && len(overrides) == 0 {
		return nil
	}
	ret := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		ret[k] = v
	}
	for k, v := range overrides {
		ret[k] = v
	}
	return ret
}
