package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_ArrivalOrder(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{JobID: "a"}))
	require.NoError(t, q.Push(&Task{JobID: "b"}))
	require.NoError(t, q.Push(&Task{JobID: "c"}))

	assert.Equal(t, 3, q.Size())

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, task.JobID)
		assert.False(t, task.CreatedAt.IsZero())
	}
}

func TestInMemoryQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()
	got := make(chan *Task, 1)

	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(&Task{JobID: "late"}))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.JobID)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestInMemoryQueue_PopContextCancel(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{JobID: "queued"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{JobID: "after"}), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "queued", task.JobID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}
