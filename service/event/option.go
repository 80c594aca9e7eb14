package event

import "github.com/viant/graphrun/service/messaging/memory"

// Option customises the event service
type Option func(s *Service)

// WithQueueConfig sets the memory queue configuration of the event stream
func WithQueueConfig(config memory.Config) Option {
	return func(s *Service) {
		s.queueConfig = config
	}
}
