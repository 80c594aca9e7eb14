package memory

import (
	"sort"

	"github.com/viant/graphrun/runtime/execution"
)

// Snapshot is a serializable image of the whole store.
type Snapshot struct {
	Runs      []*execution.Plan     `json:"runs,omitempty"`
	Resources []*execution.Resource `json:"resources,omitempty"`
}

// Snapshot returns a deep enough copy of the store content for serialization.
// Resources belonging to no run (uploads) are carried in Resources.
func (s *Store) Snapshot() *Snapshot {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ret := &Snapshot{}
	for _, runID := range s.runOrder {
		plan := &execution.Plan{Run: s.runs[runID].Clone()}
		for _, id := range s.byRun[runID] {
			plan.RunJobs = append(plan.RunJobs, s.runJobs[id].Clone())
			for _, input := range s.inputs[id] {
				in := *input
				plan.Inputs = append(plan.Inputs, &in)
			}
			for _, output := range s.outputs[id] {
				out := *output
				plan.Outputs = append(plan.Outputs, &out)
			}
		}
		ret.Runs = append(ret.Runs, plan)
	}
	for _, resource := range s.resources {
		ret.Resources = append(ret.Resources, resource.Clone())
	}
	sort.Slice(ret.Resources, func(i, j int) bool { return ret.Resources[i].ID < ret.Resources[j].ID })
	return ret
}

// Restore replaces the store content with the snapshot.
func (s *Store) Restore(snapshot *Snapshot) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.reset()
	if snapshot == nil {
		return
	}
	for _, plan := range snapshot.Runs {
		if plan == nil || plan.Run == nil {
			continue
		}
		s.insert(plan)
	}
	for _, resource := range snapshot.Resources {
		s.resources[resource.ID] = resource.Clone()
	}
}
