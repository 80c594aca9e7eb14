package builtin

import (
	"bytes"
	"context"

	"github.com/viant/afs/file"
	"github.com/viant/graphrun/model/job"
)

// NopName is the identifier of the nop job.
const NopName = "nop"

// Nop is a source job with no inputs; it writes the "content" setting (empty by default)
// to its single output.
type Nop struct {
	spec *job.Spec
}

// NewNop creates a nop job
func NewNop() *Nop {
	return &Nop{spec: &job.Spec{
		Name:        NopName,
		Description: "Performs no operation and produces an empty or configured output.",
		Category:    "system",
		Outputs:     []*job.PortType{{Name: "output", ResourceTypes: []string{job.Wildcard}}},
	}}
}

// Spec returns the job spec
func (n *Nop) Spec() *job.Spec { return n.spec }

// Run writes the output
func (n *Nop) Run(ctx context.Context, jobCtx *job.Context) error {
	out := jobCtx.Output("output")
	if out == nil {
		return nil
	}
	content, _ := jobCtx.Setting("content", "").(string)
	return jobCtx.FS.Upload(ctx, out.URL, file.DefaultFileOsMode, bytes.NewReader([]byte(content)))
}
