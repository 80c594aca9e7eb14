package executor

import "errors"

var (
	// ErrNotRunning is returned when the RunJob is not in RUNNING status; the task is stale or was
	// already finalised by another worker.
	ErrNotRunning = errors.New("executor: run job is not running")

	// ErrNotInteractive is returned when input is saved for a job without an input handler.
	ErrNotInteractive = errors.New("executor: job does not accept user input")
)
