package execution

import "time"

// RunJob is the execution instance of one WorkflowJob within one run.
type RunJob struct {
	ID            string                 `json:"id"`
	RunID         string                 `json:"runId"`
	WorkflowJobID string                 `json:"workflowJobId"`
	JobName       string                 `json:"jobName"`
	Status        Status                 `json:"status"`
	NeedsInput    bool                   `json:"needsInput"`
	ReadyForInput bool                   `json:"readyForInput"`
	TaskHandle    string                 `json:"taskHandle,omitempty"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// Clone returns a copy safe to hand out of a store. Settings are shared read-only.
func (r *RunJob) Clone() *RunJob {
	if r == nil {
		return nil
	}
	ret := *r
	return &ret
}

// IsAutomatic reports whether the scheduler may dispatch the RunJob.
func (r *RunJob) IsAutomatic() bool {
	return !r.NeedsInput
}

// RunJobs is a helper slice type
type RunJobs []*RunJob

// IDs returns RunJob identifiers in slice order.
func (r RunJobs) IDs() []string {
	ret := make([]string, 0, len(r))
	for _, item := range r {
		ret = append(ret, item.ID)
	}
	return ret
}

// Distinct drops repeated identities, keeping the first occurrence.
func (r RunJobs) Distinct() RunJobs {
	seen := make(map[string]bool, len(r))
	ret := make(RunJobs, 0, len(r))
	for _, item := range r {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		ret = append(ret, item)
	}
	return ret
}

// ByWorkflowJob indexes RunJobs by their WorkflowJob id.
func (r RunJobs) ByWorkflowJob() map[string]*RunJob {
	ret := make(map[string]*RunJob, len(r))
	for _, item := range r {
		ret[item.WorkflowJobID] = item
	}
	return ret
}
