package execution

import "time"

// WorkflowRun is one execution instance of a workflow graph.
type WorkflowRun struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	Status     RunStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Clone returns a copy safe to hand out of a store.
func (r *WorkflowRun) Clone() *WorkflowRun {
	if r == nil {
		return nil
	}
	ret := *r
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		ret.FinishedAt = &at
	}
	return &ret
}

// IsFinished reports whether the run reached its terminal status.
func (r *WorkflowRun) IsFinished() bool {
	return r.Status == RunStatusFinished
}
