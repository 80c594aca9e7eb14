package execution

import "time"

// Task is the message handed to a worker for a dispatched RunJob. Its ID is the
// correlation handle recorded on the RunJob.
type Task struct {
	ID          string    `json:"id"`
	RunID       string    `json:"runId"`
	RunJobID    string    `json:"runJobId"`
	JobName     string    `json:"jobName"`
	PassID      string    `json:"passId"`
	Attempts    int       `json:"attempts,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
}
