package scheduler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	passes       metric.Int64Counter
	dispatched   metric.Int64Counter
	finishedRuns metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	passes, err := meter.Int64Counter("graphrun.scheduler.passes",
		metric.WithDescription("Scheduling passes by outcome"))
	if err != nil {
		return nil, err
	}
	dispatched, err := meter.Int64Counter("graphrun.scheduler.dispatched",
		metric.WithDescription("RunJobs handed to the dispatcher"))
	if err != nil {
		return nil, err
	}
	finishedRuns, err := meter.Int64Counter("graphrun.scheduler.runs_finished",
		metric.WithDescription("Runs transitioned to FINISHED"))
	if err != nil {
		return nil, err
	}
	return &metrics{passes: passes, dispatched: dispatched, finishedRuns: finishedRuns}, nil
}

func (m *metrics) pass(ctx context.Context, outcome Outcome, err error) {
	m.passes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Bool("error", err != nil),
	))
}
