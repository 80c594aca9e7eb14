package builtin

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/viant/afs/file"
	"github.com/viant/graphrun/model/job"
	"github.com/viant/structology/conv"
)

// ApproveName is the identifier of the manual approval job.
const ApproveName = "manual.approve"

// Decision is written to the approve job output.
type Decision struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// Approve is an interactive job: a human inspects the input and records a decision.
type Approve struct {
	spec      *job.Spec
	converter *conv.Converter
}

// NewApprove creates a manual approval job
func NewApprove() *Approve {
	options := conv.DefaultOptions()
	options.IgnoreUnmapped = true
	return &Approve{converter: conv.NewConverter(options), spec: &job.Spec{
		Name:        ApproveName,
		Description: "Waits for a human to approve or reject the input.",
		Category:    "manual",
		Interactive: true,
		Inputs:      []*job.PortType{{Name: "input", ResourceTypes: []string{job.Wildcard}}},
		Outputs:     []*job.PortType{{Name: "decision", ResourceTypes: []string{"application/json"}}},
	}}
}

// Spec returns the job spec
func (a *Approve) Spec() *job.Spec { return a.spec }

// Run is never dispatched for interactive jobs.
func (a *Approve) Run(ctx context.Context, jobCtx *job.Context) error {
	return job.NewInvalidInputError("%s requires user input", ApproveName)
}

// ValidateInput requires a boolean "approved" and an optional string "comment".
func (a *Approve) ValidateInput(ctx context.Context, jobCtx *job.Context, data map[string]interface{}) error {
	if _, ok := data["approved"].(bool); !ok {
		return job.NewInvalidInputError("approved must be a boolean")
	}
	if comment, ok := data["comment"]; ok {
		if _, isString := comment.(string); !isString {
			return job.NewInvalidInputError("comment must be a string")
		}
	}
	return nil
}

// SaveInput writes the decision JSON to the output.
func (a *Approve) SaveInput(ctx context.Context, jobCtx *job.Context, data map[string]interface{}) error {
	decision := Decision{}
	if err := a.converter.Convert(data, &decision); err != nil {
		return job.NewInvalidInputError("invalid decision: %v", err)
	}
	if in := jobCtx.Input("input"); in != nil {
		decision.Resource = in.ResourceID
	}
	encoded, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	out := jobCtx.Output("decision")
	if out == nil {
		return nil
	}
	return jobCtx.FS.Upload(ctx, out.URL, file.DefaultFileOsMode, bytes.NewReader(encoded))
}
