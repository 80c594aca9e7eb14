// Package graphrun provides a workflow engine that runs directed acyclic graphs
// of jobs over file resources.
//
// A workflow declares jobs and the connections between their output and input
// ports. Creating a run expands the workflow into RunJobs and resources; the
// scheduler then advances the run pass by pass:
//
//   - scheduler   – computes the eligible frontier and dispatches it
//   - processor   – worker pool executing dispatched job bodies
//   - interactive – accepts user input for jobs that need it
//   - conversion  – makes uploaded resources consumable
//   - allocator   – periodically re-advances open runs
//
// Host applications embed the engine via the Service façade of the root
// package:
//
//	srv, _ := graphrun.New()
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	wf, _ := rt.LoadWorkflow(ctx, "workflow.yaml")
//	run, _ := rt.CreateRun(ctx, wf, nil)
//	run, _ = rt.WaitForRun(ctx, run.ID, time.Minute)
//
// The cmd/graphrun command exposes the same operations from the command line.
package graphrun
