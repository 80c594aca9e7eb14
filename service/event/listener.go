package event

import (
	"context"
	"errors"
	"sync"

	"github.com/viant/graphrun/internal/logging"
	"github.com/viant/graphrun/service/messaging"
)

// Handler processes a consumed event
type Handler func(*Event)

// Listener drains a publisher's queue into a handler on its own goroutine.
type Listener struct {
	publisher *Publisher
	handler   Handler
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// NewListener creates a listener
func NewListener(publisher *Publisher, handler Handler) *Listener {
	return &Listener{publisher: publisher, handler: handler, done: make(chan struct{})}
}

// Start consumes events until ctx is cancelled, Stop is called or the queue is closed.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go func() {
		defer close(l.done)
		logger := logging.FromContext(ctx)
		for {
			event, err := l.publisher.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
					return
				}
				logger.Warn("failed to consume event", "error", err)
				continue
			}
			if event != nil {
				l.handler(event)
			}
		}
	}()
}

// Stop cancels consumption and waits for the goroutine to exit.
func (l *Listener) Stop() {
	l.once.Do(func() {
		if l.cancel == nil {
			close(l.done)
			return
		}
		l.cancel()
	})
	<-l.done
}
