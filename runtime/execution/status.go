package execution

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a RunJob status change violates the state machine.
var ErrInvalidTransition = errors.New("execution: invalid status transition")

// Status represents the lifecycle state of a RunJob
type Status string

const (
	StatusNotRunning Status = "NOT_RUNNING"
	StatusRunning    Status = "RUNNING"
	StatusFinished   Status = "FINISHED"
	// StatusFailed is terminal; reached when a job body reports an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled is terminal; reached by a NOT_RUNNING RunJob that can never become
	// ready because an upstream producer failed or was cancelled.
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusNotRunning: {StatusRunning, StatusCancelled},
	StatusRunning:    {StatusFinished, StatusFailed},
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotRunning, StatusRunning, StatusFinished, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a permitted forward move.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition wrapped with details when from -> to is not permitted.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// NonTerminalStatuses lists statuses that keep a run open.
func NonTerminalStatuses() []Status {
	return []Status{StatusNotRunning, StatusRunning}
}

// RunStatus represents the state of a WorkflowRun
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
)
