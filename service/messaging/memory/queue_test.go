package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/graphrun/service/messaging"
)

type testPayload struct {
	RunJobID string
	Attempt  int
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &testPayload{RunJobID: "rj-1"}))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, "rj-1", message.T().RunJobID)
	assert.Equal(t, 1, message.Attempts())
	assert.NotEmpty(t, message.ID())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack(), "double ack")
	assert.Error(t, message.Nack(nil), "nack after ack")
	assert.Error(t, queue.Publish(ctx, nil))
}

func TestQueue_Retries(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[testPayload](config)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, queue.Publish(ctx, &testPayload{RunJobID: "rj-1"}))
	var id string
	for attempt := 1; attempt <= 3; attempt++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, attempt, message.Attempts())
		if id == "" {
			id = message.ID()
		}
		assert.Equal(t, id, message.ID(), "redelivery keeps the id")
		require.NoError(t, message.Nack(fmt.Errorf("attempt %d", attempt)))
	}

	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, []testPayload{{RunJobID: "rj-1"}}, queue.DeadLetters())
}

func TestQueue_Concurrency(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const producers, perProducer = 8, 25
	var consumed sync.Map
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(2)
		go func(producer int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, queue.Publish(ctx, &testPayload{RunJobID: fmt.Sprintf("p%d-%d", producer, j)}))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				message, err := queue.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				_, loaded := consumed.LoadOrStore(message.T().RunJobID, true)
				assert.False(t, loaded, "delivered once")
				assert.NoError(t, message.Ack())
			}
		}()
	}
	wg.Wait()

	count := 0
	consumed.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, producers*perProducer, count)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_CancellationAndClose(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, queue.Publish(cancelled, &testPayload{}))

	timeout, cancelTimeout := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &testPayload{RunJobID: "still usable"}))
	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "still usable", message.T().RunJobID)

	queue.Close()
	queue.Close()
	_, err = queue.Consume(ctx)
	assert.True(t, errors.Is(err, messaging.ErrClosed))
	assert.True(t, errors.Is(queue.Publish(ctx, &testPayload{}), messaging.ErrClosed))
}
