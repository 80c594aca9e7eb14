// Package progress summarises the RunJob statuses of a workflow run.
package progress
