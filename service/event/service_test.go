package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Listener(t *testing.T) {
	service := New()
	defer service.Close()

	var mux sync.Mutex
	var received []*Event
	service.SetListener(context.Background(), func(e *Event) {
		mux.Lock()
		received = append(received, e)
		mux.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, service.Publisher().Publish(ctx, NewEvent(TypeDispatched, "run-1", "rj-1").WithData("handle", "task-1")))
	require.NoError(t, service.Publisher().Publish(ctx, &Event{Type: TypeRunFinished, RunID: "run-1"}))

	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(received) == 2
	}, time.Second, time.Millisecond)

	mux.Lock()
	defer mux.Unlock()
	assert.Equal(t, TypeDispatched, received[0].Type)
	assert.Equal(t, "task-1", received[0].Data["handle"])
	assert.Equal(t, TypeRunFinished, received[1].Type)
	assert.False(t, received[1].CreatedAt.IsZero())
}

func TestService_ReplaceListener(t *testing.T) {
	service := New()
	first := make(chan *Event, 1)
	second := make(chan *Event, 1)
	service.SetListener(context.Background(), func(e *Event) { first <- e })
	service.SetListener(context.Background(), func(e *Event) { second <- e })

	require.NoError(t, service.Publisher().Publish(context.Background(), NewEvent(TypeCompleted, "r", "rj")))
	select {
	case e := <-second:
		assert.Equal(t, TypeCompleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered to the active listener")
	}
	assert.Len(t, first, 0)
	service.Close()
	service.Close()
}

func TestPublisher_Nil(t *testing.T) {
	var publisher *Publisher
	assert.NoError(t, publisher.Publish(context.Background(), NewEvent(TypeRunFinished, "r", "")))
}
