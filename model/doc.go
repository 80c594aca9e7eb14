// Package model contains the workflow graph template executed by the engine:
// WorkflowJob nodes referencing job definitions and Connections wiring an
// output port of one node into an input port of another.
//
// A workflow is typically loaded from a YAML document (see service/dao/workflow)
// or assembled programmatically with NewWorkflow / AddJob / Connect. The graph is
// immutable once a run has been created from it.
package model
