package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "file-1"))
	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file-1", id)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, fmt.Sprintf("f%d", i)))
	}
	assert.Equal(t, 3, q.Len())
	for i := 0; i < 3; i++ {
		id, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("f%d", i), id)
	}
}

func TestQueue_CloseWakesPendingDequeue(t *testing.T) {
	q := New(1)
	errCh := make(chan error, 1)

	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), "x"), ErrClosed)

	// Idempotent.
	q.Close()
}

func TestQueue_ClosedIsDistinctFromEmpty(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrClosed))
}

func TestQueue_BackPressure(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	assert.Equal(t, 1, q.Len())

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(blocked, "b"), context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, q.Enqueue(ctx, "c"))
	}()

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	wg.Wait()

	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", id)
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, 3, New(3).Cap())
}
