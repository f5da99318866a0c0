package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsSubmittedTasks(t *testing.T) {
	dispatcher := NewDispatcher(2, 8, nil)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.True(t, dispatcher.Submit(func(context.Context) {
			ran.Add(1)
		}))
	}

	dispatcher.Stop()
	assert.Equal(t, int32(5), ran.Load())
}

func TestDispatcher_SubmitAfterStop(t *testing.T) {
	dispatcher := NewDispatcher(1, 1, nil)
	dispatcher.Stop()

	assert.False(t, dispatcher.Submit(func(context.Context) {}))
}

func TestDispatcher_SurvivesPanickingTask(t *testing.T) {
	dispatcher := NewDispatcher(1, 8, nil)

	require.True(t, dispatcher.Submit(func(context.Context) {
		panic("task exploded")
	}))

	done := make(chan struct{})
	require.True(t, dispatcher.Submit(func(context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	dispatcher.Stop()
}

func TestDispatcher_FullQueueDropsTask(t *testing.T) {
	dispatcher := NewDispatcher(1, 1, nil)

	blocker := make(chan struct{})
	started := make(chan struct{})
	require.True(t, dispatcher.Submit(func(context.Context) {
		close(started)
		<-blocker
	}))
	<-started

	// One slot in the queue, then it overflows.
	assert.True(t, dispatcher.Submit(func(context.Context) {}))
	assert.False(t, dispatcher.Submit(func(context.Context) {}))

	close(blocker)
	dispatcher.Stop()
}
