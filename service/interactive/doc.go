// Package interactive accepts user input for interactive RunJobs. A submission is
// validated first, then claims the RunJob, hands the input to the job through the
// executor and advances the run.
package interactive
