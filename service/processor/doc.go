// Package processor hosts the workers that execute dispatched tasks. Every
// worker consumes tasks from the queue fed by the dispatcher, runs the job
// body through the executor, applies the retry policy and reports the final
// outcome of each task exactly once to the completion handler.
package processor
