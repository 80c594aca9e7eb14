// Package messaging abstracts the task queue between the dispatcher and workers.
package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to or consuming from a closed queue.
var ErrClosed = errors.New("messaging: queue closed")

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available, the context is done or the queue is closed
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message id, stable across redeliveries
	ID() string

	// T returns the payload of this message
	T() *T

	// Attempts returns how many times this message was delivered, starting with 1
	Attempts() int

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message; the queue decides whether to redeliver
	Nack(err error) error
}
