package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/viant/afs/file"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/graphrun/model/job"
)

// ExecName is the identifier of the exec job.
const ExecName = "system.exec"

// Exec runs the "command" setting in a local shell. The input is staged to a local file
// exposed as $INPUT; stdout becomes the output.
type Exec struct {
	spec *job.Spec
}

// NewExec creates an exec job
func NewExec() *Exec {
	return &Exec{spec: &job.Spec{
		Name:        ExecName,
		Description: "Runs a shell command over the input file, stdout is written to the output.",
		Category:    "system",
		Inputs:      []*job.PortType{{Name: "input", ResourceTypes: []string{job.Wildcard}}},
		Outputs:     []*job.PortType{{Name: "output", ResourceTypes: []string{"text/plain"}}},
		Settings:    map[string]interface{}{"timeoutMs": 60000},
	}}
}

// Spec returns the job spec
func (e *Exec) Spec() *job.Spec { return e.spec }

// Run executes the command; a non-zero exit status fails the job.
func (e *Exec) Run(ctx context.Context, jobCtx *job.Context) error {
	in, out := jobCtx.Input("input"), jobCtx.Output("output")
	if in == nil || out == nil {
		return fmt.Errorf("exec: input and output are required")
	}
	command, _ := jobCtx.Setting("command", "").(string)
	if command == "" {
		return fmt.Errorf("exec: command setting is required")
	}
	timeoutMs := jobCtx.IntSetting("timeoutMs", 60000)

	data, err := jobCtx.FS.DownloadWithURL(ctx, in.URL)
	if err != nil {
		return fmt.Errorf("exec: failed to read %v: %w", in.URL, err)
	}
	dir, err := os.MkdirTemp("", "graphrun-exec")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	inputPath := filepath.Join(dir, "input")
	if err = os.WriteFile(inputPath, data, file.DefaultFileOsMode); err != nil {
		return err
	}

	shell, err := gosh.New(ctx, local.New(runner.WithEnvironment(map[string]string{"INPUT": inputPath})))
	if err != nil {
		return fmt.Errorf("exec: failed to start shell: %w", err)
	}
	defer shell.Close()
	started := time.Now()
	stdout, status, err := shell.Run(ctx, command, runner.WithTimeout(timeoutMs))
	if err != nil {
		return fmt.Errorf("exec: %v failed after %s: %w", command, time.Since(started), err)
	}
	if status != 0 {
		return fmt.Errorf("exec: %v exited with status %d: %s", command, status, stdout)
	}
	return jobCtx.FS.Upload(ctx, out.URL, file.DefaultFileOsMode, bytes.NewReader([]byte(stdout)))
}
