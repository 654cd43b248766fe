package eventq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Send(ctx, i))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 4, q.Cap())

	for want := 1; want <= 3; want++ {
		got := <-q.C()
		q.MarkProcessed()
		assert.Equal(t, want, got)
	}

	m := q.GetMetrics()
	assert.Equal(t, int64(3), m.Written)
	assert.Equal(t, int64(3), m.Processed)
	assert.Equal(t, int64(0), m.Dropped)
}

func TestQueueTrySendDropsWhenFull(t *testing.T) {
	q := New[string](1)

	assert.True(t, q.TrySend("a"))
	assert.False(t, q.TrySend("b"), "full queue MUST reject without blocking")
	assert.Equal(t, int64(1), q.GetMetrics().Dropped)
	assert.Equal(t, "a", <-q.C())
}

func TestQueueSendRespectsContext(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Send(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Send(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseWakesBlockedSenders(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Send(context.Background(), 1))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- q.Send(context.Background(), 2)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}

	// buffered item stays readable, then the channel reports closed
	v, ok := <-q.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-q.C()
	assert.False(t, ok)

	assert.False(t, q.TrySend(3))
	assert.ErrorIs(t, q.Send(context.Background(), 3), ErrClosed)

	select {
	case <-q.Done():
	default:
		t.Fatal("Done MUST be closed after Close")
	}
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
