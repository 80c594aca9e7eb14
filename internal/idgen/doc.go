// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Run, RunJob, resource, pass and task handle identifiers all come from here;
// callers treat them as opaque strings.
package idgen
