// Package tracing wraps OpenTelemetry so that scheduling passes and job
// executions can be traced without the rest of graphrun importing the SDK.
// Until Init is called spans are no-ops.
package tracing
