// Package executor runs the body of a job for one RunJob. It bridges the
// tasks consumed by the processor with the job implementations held by the
// registry: it resolves the ports of the RunJob into artifacts, invokes the
// job and, on success, publishes its outputs and finalises the RunJob.
package executor
