package model

import (
	"fmt"
	"sort"

	"github.com/viant/graphrun/model/job"
)

// Source describes where a workflow definition was loaded from.
type Source struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// WorkflowJob is a node of the workflow graph referencing a job definition.
type WorkflowJob struct {
	ID       string                 `json:"id" yaml:"id"`
	Job      string                 `json:"job" yaml:"job"`
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Workflow represents a workflow graph template
type Workflow struct {
	Source      *Source        `json:"source,omitempty" yaml:"source,omitempty"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Jobs        []*WorkflowJob `json:"jobs" yaml:"jobs"`
	Connections []*Connection  `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// SpecLookup resolves a job definition by name.
type SpecLookup func(name string) (*job.Spec, error)

// NewWorkflow creates a new workflow with the given name
func NewWorkflow(name string) *Workflow {
	return &Workflow{Name: name}
}

// WithDescription sets the description of the workflow
func (w *Workflow) WithDescription(description string) *Workflow {
	w.Description = description
	return w
}

// AddJob appends a node running jobName.
func (w *Workflow) AddJob(id, jobName string) *WorkflowJob {
	ret := &WorkflowJob{ID: id, Job: jobName}
	w.Jobs = append(w.Jobs, ret)
	return ret
}

// WithSetting sets a job setting
func (j *WorkflowJob) WithSetting(name string, value interface{}) *WorkflowJob {
	if j.Settings == nil {
		j.Settings = map[string]interface{}{}
	}
	j.Settings[name] = value
	return j
}

// Connect wires from ("<job>.<port>") into to ("<job>.<port>"). Malformed references
// are kept as-is and reported by Validate.
func (w *Workflow) Connect(from, to string) *Workflow {
	fromRef, _ := ParsePortRef(from)
	toRef, _ := ParsePortRef(to)
	w.Connections = append(w.Connections, &Connection{From: fromRef, To: toRef})
	return w
}

// Job returns a node by id
func (w *Workflow) Job(id string) *WorkflowJob {
	for _, candidate := range w.Jobs {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}

// IncomingConnection returns the connection feeding the given input port, if any.
func (w *Workflow) IncomingConnection(ref PortRef) *Connection {
	for _, conn := range w.Connections {
		if conn.To == ref {
			return conn
		}
	}
	return nil
}

// Validate performs a structural validation of the graph against the job definitions
// resolved by lookup. The returned slice is empty when the workflow is sound.
func (w *Workflow) Validate(lookup SpecLookup) []error {
	var issues []error
	if len(w.Jobs) == 0 {
		return append(issues, fmt.Errorf("workflow %s has no jobs", w.Name))
	}

	specs := map[string]*job.Spec{}
	for _, node := range w.Jobs {
		if node.ID == "" {
			issues = append(issues, fmt.Errorf("workflow job with job %q has empty id", node.Job))
			continue
		}
		if _, ok := specs[node.ID]; ok {
			issues = append(issues, fmt.Errorf("duplicate workflow job id %s", node.ID))
			continue
		}
		spec, err := lookup(node.Job)
		if err != nil {
			issues = append(issues, fmt.Errorf("workflow job %s: %w", node.ID, err))
			specs[node.ID] = nil
			continue
		}
		specs[node.ID] = spec
	}

	connected := map[PortRef]bool{}
	for _, conn := range w.Connections {
		fromSpec, fromOK := specs[conn.From.Job]
		toSpec, toOK := specs[conn.To.Job]
		if !fromOK {
			issues = append(issues, fmt.Errorf("connection %v: unknown source job %q", conn, conn.From.Job))
		}
		if !toOK {
			issues = append(issues, fmt.Errorf("connection %v: unknown target job %q", conn, conn.To.Job))
		}
		if fromSpec == nil || toSpec == nil {
			continue
		}
		out := fromSpec.Output(conn.From.Port)
		if out == nil {
			issues = append(issues, fmt.Errorf("connection %v: job %s has no output port %q", conn, fromSpec.Name, conn.From.Port))
		}
		in := toSpec.Input(conn.To.Port)
		if in == nil {
			issues = append(issues, fmt.Errorf("connection %v: job %s has no input port %q", conn, toSpec.Name, conn.To.Port))
		}
		if out != nil && in != nil && !job.Compatible(out, in) {
			issues = append(issues, fmt.Errorf("connection %v: incompatible resource types %v -> %v", conn, out.ResourceTypes, in.ResourceTypes))
		}
		if connected[conn.To] {
			issues = append(issues, fmt.Errorf("input port %v has more than one incoming connection", conn.To))
		}
		connected[conn.To] = true
	}

	if _, err := w.TopologicalOrder(); err != nil {
		issues = append(issues, err)
	}
	return issues
}

// TopologicalOrder returns workflow job ids ordered so that producers precede consumers.
// Ties are broken by id for a stable result. A cycle is reported as an error.
func (w *Workflow) TopologicalOrder() ([]string, error) {
	inDegree := map[string]int{}
	edges := map[string]map[string]bool{}
	for _, node := range w.Jobs {
		inDegree[node.ID] = 0
	}
	for _, conn := range w.Connections {
		if _, ok := inDegree[conn.From.Job]; !ok {
			continue
		}
		if _, ok := inDegree[conn.To.Job]; !ok {
			continue
		}
		if edges[conn.From.Job] == nil {
			edges[conn.From.Job] = map[string]bool{}
		}
		if edges[conn.From.Job][conn.To.Job] {
			continue
		}
		edges[conn.From.Job][conn.To.Job] = true
		inDegree[conn.To.Job]++
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)
		var next []string
		for target := range edges[current] {
			inDegree[target]--
			if inDegree[target] == 0 {
				next = append(next, target)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
		sort.Strings(ready)
	}
	if len(order) != len(inDegree) {
		return nil, fmt.Errorf("workflow %s contains a cycle", w.Name)
	}
	return order, nil
}
