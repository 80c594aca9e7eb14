package builtin

import (
	"context"
	"fmt"

	"github.com/viant/graphrun/model/job"
)

// CopyName is the identifier of the copy job.
const CopyName = "copy"

// Copy passes its input through to its output unchanged.
type Copy struct {
	spec *job.Spec
}

// NewCopy creates a copy job
func NewCopy() *Copy {
	return &Copy{spec: &job.Spec{
		Name:        CopyName,
		Description: "Copies the input resource to the output.",
		Category:    "system",
		Inputs:      []*job.PortType{{Name: "input", ResourceTypes: []string{job.Wildcard}}},
		Outputs:     []*job.PortType{{Name: "output", ResourceTypes: []string{job.Wildcard}}},
	}}
}

// Spec returns the job spec
func (c *Copy) Spec() *job.Spec { return c.spec }

// Run copies the input to the output location
func (c *Copy) Run(ctx context.Context, jobCtx *job.Context) error {
	in, out := jobCtx.Input("input"), jobCtx.Output("output")
	if in == nil || out == nil {
		return fmt.Errorf("copy: input and output are required")
	}
	if err := jobCtx.FS.Copy(ctx, in.URL, out.URL); err != nil {
		return fmt.Errorf("copy: failed to copy %v to %v: %w", in.URL, out.URL, err)
	}
	return nil
}
