// Package scheduler drives workflow runs forward.
//
// Advance is the single entry point: it computes the frontier of a run (automatic
// RunJobs whose inputs are ready), claims it, dispatches every claimed RunJob and
// registers one fan-in group per pass. When the last dispatched RunJob of a pass
// completes, Complete re-enters Advance for the run. A pass holds no state between
// calls; every decision is re-derived from the store, so any number of passes may
// run concurrently for the same run.
package scheduler
