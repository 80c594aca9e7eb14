// Package execution holds the persisted state of workflow runs: WorkflowRun,
// RunJob and its status machine, Resources with the readiness gate, the
// Input / Output bindings and the Task message handed to workers.
package execution
