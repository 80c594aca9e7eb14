// Package builtin provides general purpose jobs shipped with graphrun: nop
// (source), copy, print (sink), text.diff (fan-in), system.exec and the
// interactive manual.approve.
package builtin

import "github.com/viant/graphrun/model/job"

// Jobs returns every built-in job.
func Jobs() []job.Job {
	return []job.Job{NewNop(), NewCopy(), NewPrint(), NewDiff(), NewExec(), NewApprove()}
}
