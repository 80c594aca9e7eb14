package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/graphrun"
	"github.com/viant/graphrun/service/event"
)

type runOptions struct {
	workflow string
	inputs   []string
	submits  []string
	timeout  time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	options := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow until it finishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return options.run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringVarP(&options.workflow, "workflow", "w", "", "workflow definition (YAML)")
	cmd.Flags().StringArrayVarP(&options.inputs, "input", "i", nil, "input binding job.port=path, repeatable")
	cmd.Flags().StringArrayVarP(&options.submits, "submit", "s", nil, "user input for an interactive job: job={json}, repeatable")
	cmd.Flags().DurationVar(&options.timeout, "timeout", time.Minute, "maximum time to wait for the run")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func (o *runOptions) run(ctx context.Context, out io.Writer, cfg *graphrun.Config) error {
	submissions, err := parseSubmissions(o.submits)
	if err != nil {
		return err
	}
	out = &syncWriter{w: out}
	ready := newReadyQueue()
	srv, err := graphrun.New(graphrun.WithConfig(cfg), graphrun.WithEventHandler(func(e *event.Event) {
		fmt.Fprintf(out, "%s %-24s %s\n", e.CreatedAt.Format("15:04:05.000"), e.Type, e.RunJobID)
		if e.Type == event.TypeReadyForInput {
			ready.push(e.RunJobID)
		}
	}))
	if err != nil {
		return err
	}
	runtime := srv.Runtime()
	ctx = srv.NewContext(ctx)
	if err = runtime.Start(ctx); err != nil {
		return err
	}
	defer runtime.Shutdown(context.Background())

	URL, err := location(o.workflow)
	if err != nil {
		return err
	}
	wf, err := runtime.LoadWorkflow(ctx, URL)
	if err != nil {
		return err
	}
	fs := afs.New()
	bindings := map[string]string{}
	var uploads []string
	for _, input := range o.inputs {
		port, source, ok := strings.Cut(input, "=")
		if !ok {
			return fmt.Errorf("invalid input %q, expected job.port=path", input)
		}
		if source, err = location(source); err != nil {
			return err
		}
		data, err := fs.DownloadWithURL(ctx, source)
		if err != nil {
			return err
		}
		resource, err := runtime.UploadResource(ctx, path.Base(source), mime.TypeByExtension(path.Ext(source)), data)
		if err != nil {
			return err
		}
		bindings[port] = resource.ID
		uploads = append(uploads, resource.ID)
	}

	aRun, err := runtime.CreateRun(ctx, wf, bindings)
	if err != nil {
		return err
	}
	for _, resourceID := range uploads {
		if err = runtime.ConvertResource(ctx, resourceID); err != nil {
			return err
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := runtime.WaitForRun(waitCtx, aRun.ID, o.timeout)
		done <- err
	}()
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			return printRunJobs(ctx, out, runtime, aRun.ID)
		case <-ready.signal:
			for _, runJobID := range ready.drain() {
				if err := submit(ctx, runtime, aRun.ID, runJobID, submissions); err != nil {
					return err
				}
			}
		}
	}
}

// readyQueue collects RunJobs awaiting input; push never blocks the event listener.
type readyQueue struct {
	mux    sync.Mutex
	ids    []string
	signal chan struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{signal: make(chan struct{}, 1)}
}

func (q *readyQueue) push(runJobID string) {
	q.mux.Lock()
	q.ids = append(q.ids, runJobID)
	q.mux.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain returns the queued ids in arrival order.
func (q *readyQueue) drain() []string {
	q.mux.Lock()
	defer q.mux.Unlock()
	ret := q.ids
	q.ids = nil
	return ret
}

// submit hands the --submit data of the job to an interactive RunJob that became ready.
func submit(ctx context.Context, runtime *graphrun.Runtime, runID, runJobID string, submissions map[string]map[string]interface{}) error {
	pending, err := runtime.PendingInput(ctx, runID)
	if err != nil {
		return err
	}
	for _, runJob := range pending {
		if runJob.ID != runJobID {
			continue
		}
		data, ok := submissions[runJob.WorkflowJobID]
		if !ok {
			return fmt.Errorf("job %s awaits user input, pass --submit %s='{...}'", runJob.WorkflowJobID, runJob.WorkflowJobID)
		}
		return runtime.SubmitInput(ctx, runJobID, data)
	}
	return nil
}

func parseSubmissions(items []string) (map[string]map[string]interface{}, error) {
	ret := map[string]map[string]interface{}{}
	for _, item := range items {
		node, encoded, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid submission %q, expected job={json}", item)
		}
		data := map[string]interface{}{}
		if err := json.Unmarshal([]byte(encoded), &data); err != nil {
			return nil, fmt.Errorf("invalid submission for %s: %w", node, err)
		}
		ret[node] = data
	}
	return ret, nil
}

func printRunJobs(ctx context.Context, out io.Writer, runtime *graphrun.Runtime, runID string) error {
	runJobs, err := runtime.RunJobs(ctx, runID)
	if err != nil {
		return err
	}
	summary, err := runtime.Progress(ctx, runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run %s finished, %v\n", runID, summary)
	fmt.Fprintln(w, "JOB\tNAME\tSTATUS\tERROR")
	for _, runJob := range runJobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", runJob.WorkflowJobID, runJob.JobName, runJob.Status, runJob.Error)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if summary.Finished < summary.Total {
		return fmt.Errorf("%d of %d jobs did not finish", summary.Total-summary.Finished, summary.Total)
	}
	return nil
}

// syncWriter serialises writes of the event handler and the command.
type syncWriter struct {
	mux sync.Mutex
	w   io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.w.Write(p)
}
