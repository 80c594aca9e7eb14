package execution

import "time"

// Resource is a data artifact, uploaded or produced by a job.
type Resource struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	RunID        string    `json:"runId,omitempty"`
	ResourceType string    `json:"resourceType,omitempty"`
	RawURL       string    `json:"rawUrl,omitempty"`
	CompatURL    string    `json:"compatUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsReady reports whether the compatible representation has been populated, i.e. whether
// the resource can be consumed by a downstream job.
func (r *Resource) IsReady() bool {
	return r != nil && r.CompatURL != ""
}

// Clone returns a copy.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	ret := *r
	return &ret
}

// Input binds a RunJob input port to a resource.
type Input struct {
	ID         string `json:"id"`
	RunJobID   string `json:"runJobId"`
	Port       string `json:"port"`
	ResourceID string `json:"resourceId"`
}

// Output binds a RunJob output port to the resource it produces.
type Output struct {
	ID         string `json:"id"`
	RunJobID   string `json:"runJobId"`
	Port       string `json:"port"`
	ResourceID string `json:"resourceId"`
}
