package event

import (
	"context"
	"fmt"

	"github.com/viant/graphrun/internal/clock"
	"github.com/viant/graphrun/service/messaging"
)

// Publisher writes events to a queue. A nil publisher discards events.
type Publisher struct {
	queue messaging.Queue[Event]
}

// NewPublisher creates a publisher
func NewPublisher(queue messaging.Queue[Event]) *Publisher {
	return &Publisher{queue: queue}
}

// Publish enqueues an event
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	if p == nil || p.queue == nil || event == nil {
		return nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = clock.Now()
	}
	if err := p.queue.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Consume takes the next event from the queue, acknowledging it.
func (p *Publisher) Consume(ctx context.Context) (*Event, error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
