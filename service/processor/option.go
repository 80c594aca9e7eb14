package processor

import (
	"log/slog"

	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/messaging"
)

type Option func(*Service)

// WithMessageQueue sets the task queue
func WithMessageQueue(queue messaging.Queue[execution.Task]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithExecutor sets the task executor
func WithExecutor(executor Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithCompletionHandler sets the callback receiving the final outcome of every task
func WithCompletionHandler(handler CompletionHandler) Option {
	return func(s *Service) {
		s.onComplete = handler
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
