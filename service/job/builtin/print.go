package builtin

import (
	"context"
	"fmt"

	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/model/job"
)

// PrintName is the identifier of the print job.
const PrintName = "print"

// Print is a sink logging its input content.
type Print struct {
	spec *job.Spec
}

// NewPrint creates a print job
func NewPrint() *Print {
	return &Print{spec: &job.Spec{
		Name:        PrintName,
		Description: "Logs the input resource content.",
		Category:    "system",
		Inputs:      []*job.PortType{{Name: "input", ResourceTypes: []string{job.Wildcard}}},
	}}
}

// Spec returns the job spec
func (p *Print) Spec() *job.Spec { return p.spec }

// Run logs the input content, truncated to the "limit" setting (default 256 bytes).
func (p *Print) Run(ctx context.Context, jobCtx *job.Context) error {
	in := jobCtx.Input("input")
	if in == nil {
		return fmt.Errorf("print: input is required")
	}
	data, err := jobCtx.FS.DownloadWithURL(ctx, in.URL)
	if err != nil {
		return fmt.Errorf("print: failed to read %v: %w", in.URL, err)
	}
	limit := jobCtx.IntSetting("limit", 256)
	if limit <= 0 {
		limit = 256
	}
	content := data
	if len(content) > limit {
		content = content[:limit]
	}
	logging.FromContext(ctx).Info("print", "run_job_id", jobCtx.RunJobID, "resource", in.Name, "size", len(data), "content", string(content))
	return nil
}
