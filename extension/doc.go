// Package extension provides the run-time job registry mapping a job
// identifier onto its executable body. The registry is validated once at
// startup so that unknown identifiers are rejected before any run begins.
package extension
