package scheduler

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/viant/graphrun/runtime/correlation"
)

// Option customises the scheduler
type Option func(s *Service)

// WithCorrelationStore sets the store keeping open fan-in groups
func WithCorrelationStore(groups *correlation.Store) Option {
	return func(s *Service) {
		s.groups = groups
	}
}

// WithPublisher sets the lifecycle event publisher
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithMeter sets the meter used for scheduling counters
func WithMeter(meter metric.Meter) Option {
	return func(s *Service) {
		s.meter = meter
	}
}
