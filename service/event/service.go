// Package event publishes run lifecycle events over a messaging queue and lets a
// single listener observe them.
package event

import (
	"context"
	"sync"

	"github.com/viant/graphrun/service/messaging/memory"
)

// Service owns the event queue, its publisher and the active listener
type Service struct {
	queueConfig memory.Config
	queue       *memory.Queue[Event]
	publisher   *Publisher
	mux         sync.Mutex
	listener    *Listener
}

// Publisher returns the publisher writing to the event queue
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// SetListener replaces the active listener with one driving handler.
func (s *Service) SetListener(ctx context.Context, handler Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener(s.publisher, handler)
	s.listener.Start(ctx)
}

// Close stops the listener and closes the queue.
func (s *Service) Close() {
	s.mux.Lock()
	listener := s.listener
	s.listener = nil
	s.mux.Unlock()
	if listener != nil {
		listener.Stop()
	}
	s.queue.Close()
}

// New creates an event service backed by a memory queue
func New(opts ...Option) *Service {
	ret := &Service{queueConfig: memory.DefaultConfig()}
	for _, opt := range opts {
		opt(ret)
	}
	// events are fire-and-forget
	ret.queueConfig.DeadLetter = false
	if ret.queueConfig.QueueBuffer < 1024 {
		ret.queueConfig.QueueBuffer = 1024
	}
	ret.queue = memory.NewQueue[Event](ret.queueConfig)
	ret.publisher = NewPublisher(ret.queue)
	return ret
}
