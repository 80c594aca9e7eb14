// Package correlation implements the fan-in barrier of a scheduling pass: a
// counting group created before a frontier is dispatched that reports when
// every dispatched RunJob has completed.
package correlation

import (
	"sync"
	"time"
)

// Group represents a rendez-vous for the RunJobs dispatched by one scheduling pass.
// The group tracks how many members were expected and how many have already reported
// completion, successful or not.
type Group struct {
	ID       string
	RunID    string
	Expected int

	mu        sync.Mutex
	completed int
	failed    int
	reported  map[string]bool

	CreatedAt time.Time
	DoneAt    *time.Time
}

// NewGroup creates a group for a pass dispatching expected RunJobs.
func NewGroup(id, runID string, expected int) *Group {
	return &Group{ID: id, RunID: runID, Expected: expected, CreatedAt: time.Now(), reported: map[string]bool{}}
}

// MarkDone registers completion of member (a RunJob id) and returns true exactly once:
// for the call that completes the group. Repeated reports for the same member are ignored.
func (g *Group) MarkDone(member string, failed bool) (groupComplete bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reported == nil {
		g.reported = map[string]bool{}
	}
	if member != "" {
		if g.reported[member] {
			return false
		}
		g.reported[member] = true
	}
	if failed {
		g.failed++
	}
	g.completed++
	if g.completed >= g.Expected && g.Expected > 0 && g.DoneAt == nil {
		now := time.Now()
		g.DoneAt = &now
		return true
	}
	return false
}

// Failed returns the number of members that reported failure.
func (g *Group) Failed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

// Pending returns how many members have not reported yet.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Expected - g.completed
}

// Done returns whether the group has completed.
func (g *Group) Done() bool {
	g.mu.Lock()
	done := g.DoneAt != nil
	g.mu.Unlock()
	return done
}
