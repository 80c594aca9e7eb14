package progress

import (
	"fmt"

	"github.com/viant/graphrun/runtime/execution"
)

// Progress holds RunJob counters of a single run.
type Progress struct {
	RunID      string `json:"runId"`
	Total      int    `json:"total"`
	NotRunning int    `json:"notRunning"`
	Running    int    `json:"running"`
	Finished   int    `json:"finished"`
	Failed     int    `json:"failed"`
	Cancelled  int    `json:"cancelled"`
	// AwaitingInput counts NOT_RUNNING interactive RunJobs whose inputs are consumable.
	AwaitingInput int `json:"awaitingInput"`
}

// New counts the statuses of runJobs.
func New(runID string, runJobs []*execution.RunJob) *Progress {
	ret := &Progress{RunID: runID, Total: len(runJobs)}
	for _, runJob := range runJobs {
		switch runJob.Status {
		case execution.StatusNotRunning:
			ret.NotRunning++
			if runJob.NeedsInput && runJob.ReadyForInput {
				ret.AwaitingInput++
			}
		case execution.StatusRunning:
			ret.Running++
		case execution.StatusFinished:
			ret.Finished++
		case execution.StatusFailed:
			ret.Failed++
		case execution.StatusCancelled:
			ret.Cancelled++
		}
	}
	return ret
}

// Terminal returns the number of RunJobs that reached a terminal status.
func (p *Progress) Terminal() int {
	return p.Finished + p.Failed + p.Cancelled
}

// Done reports whether every RunJob is terminal.
func (p *Progress) Done() bool {
	return p.Terminal() == p.Total
}

// Percent returns the terminal share in percent; an empty run is complete.
func (p *Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Terminal()) * 100 / float64(p.Total)
}

func (p *Progress) String() string {
	return fmt.Sprintf("%d/%d done (%.0f%%): %d finished, %d failed, %d cancelled, %d running, %d awaiting input",
		p.Terminal(), p.Total, p.Percent(), p.Finished, p.Failed, p.Cancelled, p.Running, p.AwaitingInput)
}
