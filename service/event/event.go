package event

import (
	"time"

	"github.com/viant/graphrun/internal/clock"
)

// Type identifies a run lifecycle event
type Type string

const (
	// TypeReadyForInput is emitted when an interactive RunJob becomes ready for user input.
	TypeReadyForInput Type = "runjob.ready_for_input"
	// TypeDispatched is emitted for every RunJob handed to a worker.
	TypeDispatched Type = "runjob.dispatched"
	// TypeCompleted is emitted when a dispatched RunJob reports its outcome.
	TypeCompleted Type = "runjob.completed"
	// TypeRunFinished is emitted once per run, by the pass that finished it.
	TypeRunFinished Type = "run.finished"
)

// Event describes a state change of a run or one of its RunJobs
type Event struct {
	Type      Type                   `json:"type"`
	RunID     string                 `json:"runId"`
	RunJobID  string                 `json:"runJobId,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// WithData sets a data attribute
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = map[string]interface{}{}
	}
	e.Data[key] = value
	return e
}

// NewEvent creates an event
func NewEvent(eventType Type, runID, runJobID string) *Event {
	return &Event{
		Type:      eventType,
		RunID:     runID,
		RunJobID:  runJobID,
		CreatedAt: clock.Now(),
	}
}
