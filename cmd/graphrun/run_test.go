package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueue(t *testing.T) {
	queue := newReadyQueue()
	pushed := make(chan struct{})
	var expect []string
	for i := 0; i < 100; i++ {
		expect = append(expect, fmt.Sprintf("rj-%d", i))
	}
	go func() {
		for _, id := range expect {
			queue.push(id)
		}
		close(pushed)
	}()
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push blocked without a reader")
	}

	select {
	case <-queue.signal:
	default:
		t.Fatal("expected a pending signal")
	}
	assert.Equal(t, expect, queue.drain())
	assert.Empty(t, queue.drain())

	queue.push("late")
	<-queue.signal
	require.Equal(t, []string{"late"}, queue.drain())
}
