package builtin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	sgdiff "github.com/sourcegraph/go-diff/diff"
	"github.com/viant/afs/file"
	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/model/job"
)

// DiffName is the identifier of the diff job.
const DiffName = "text.diff"

// Diff joins two text resources into a unified diff.
type Diff struct {
	spec *job.Spec
}

// NewDiff creates a diff job
func NewDiff() *Diff {
	return &Diff{spec: &job.Spec{
		Name:        DiffName,
		Description: "Writes the unified diff between the original and the modified input.",
		Category:    "text",
		Inputs: []*job.PortType{
			{Name: "original", ResourceTypes: []string{"text/*"}},
			{Name: "modified", ResourceTypes: []string{"text/*"}},
		},
		Outputs:  []*job.PortType{{Name: "patch", ResourceTypes: []string{"text/x-diff"}}},
		Settings: map[string]interface{}{"context": 3},
	}}
}

// Spec returns the job spec
func (d *Diff) Spec() *job.Spec { return d.spec }

// Run writes the patch; identical inputs produce an empty one.
func (d *Diff) Run(ctx context.Context, jobCtx *job.Context) error {
	original, modified, out := jobCtx.Input("original"), jobCtx.Input("modified"), jobCtx.Output("patch")
	if original == nil || modified == nil || out == nil {
		return fmt.Errorf("diff: original, modified and patch are required")
	}
	before, err := jobCtx.FS.DownloadWithURL(ctx, original.URL)
	if err != nil {
		return fmt.Errorf("diff: failed to read %v: %w", original.URL, err)
	}
	after, err := jobCtx.FS.DownloadWithURL(ctx, modified.URL)
	if err != nil {
		return fmt.Errorf("diff: failed to read %v: %w", modified.URL, err)
	}
	contextLines := jobCtx.IntSetting("context", 3)
	patch, err := UnifiedDiff(before, after, original.Name, modified.Name, contextLines)
	if err != nil {
		return err
	}
	if patch != "" {
		fileDiff, err := sgdiff.ParseFileDiff([]byte(patch))
		if err != nil {
			return fmt.Errorf("diff: generated an unreadable patch: %w", err)
		}
		stat := fileDiff.Stat()
		logging.FromContext(ctx).Debug("diff", "run_job_id", jobCtx.RunJobID, "added", stat.Added, "deleted", stat.Deleted, "changed", stat.Changed)
	}
	return jobCtx.FS.Upload(ctx, out.URL, file.DefaultFileOsMode, bytes.NewReader([]byte(patch)))
}

// UnifiedDiff returns the unified diff of two contents, or "" when they are equal.
func UnifiedDiff(before, after []byte, fromName, toName string, contextLines int) (string, error) {
	if bytes.Equal(before, after) {
		return "", nil
	}
	if contextLines <= 0 {
		contextLines = 3
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  contextLines,
	})
}
