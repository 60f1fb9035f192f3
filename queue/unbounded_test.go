package queue

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/corenetio/corenet/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedQueueFIFO(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		item, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, item)
	}
}

func TestUnboundedQueueConcurrentProducersLinearExtension(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}()
	}
	wg.Wait()

	seen := make([]int, 0, producers*perProducer)
	for i := 0; i < producers*perProducer; i++ {
		item, ok := q.Pop()
		require.True(t, ok)
		seen = append(seen, item)
	}

	// Per-producer submission order must be preserved even though
	// producers interleave (spec testable property 6).
	perProducerSeen := make(map[int][]int)
	for _, v := range seen {
		p := v / perProducer
		perProducerSeen[p] = append(perProducerSeen[p], v)
	}
	for p, vals := range perProducerSeen {
		assert.True(t, sort.IntsAreSorted(vals), "producer %d's items arrived out of order: %v", p, vals)
	}
}

func TestUnboundedQueueTombstoneUnblocksOnePop(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.PushTombstone()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("tombstone did not unblock Pop")
	}
}

func TestUnboundedQueueTryPopOrFail(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	_, err := q.TryPopOrFail()
	assert.ErrorIs(t, err, errs.ErrQueuePopEmpty)

	q.Push(42)
	v, err := q.TryPopOrFail()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestUnboundedQueueTimedPopOrFail(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	_, err := q.TimedPopOrFail(10 * time.Millisecond)
	assert.ErrorIs(t, err, errs.ErrQueuePopTimeout)
}

func TestUnboundedQueueStealBackIsLIFO(t *testing.T) {
	q := NewUnboundedQueue[int](nil)
	q.Push(1)
	q.Push(2)
	q.Push(3)

	v, ok := q.TryStealBack()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestUnboundedQueueClearInvokesDeleter(t *testing.T) {
	var deleted []int
	q := NewUnboundedQueue[int](func(v int) { deleted = append(deleted, v) })
	q.Push(1)
	q.Push(2)
	q.Clear()
	assert.Equal(t, []int{1, 2}, deleted)
	assert.Equal(t, 0, q.Len())
}
