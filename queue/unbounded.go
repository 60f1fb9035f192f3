package queue

import (
	"sync"
	"time"

	"github.com/corenetio/corenet/errs"
)

type entry[T any] struct {
	val       T
	tombstone bool
}

// UnboundedQueue is an MPMC FIFO used for worker-thread inboxes and
// the legacy message-queue thread. A zero value is not usable; build
// one with NewUnboundedQueue.
type UnboundedQueue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []entry[T]
	deleter  func(T)
}

// NewUnboundedQueue creates an empty queue. deleter, if non-nil, is
// invoked once per live (non-tombstone) item discarded by Clear.
func NewUnboundedQueue[T any](deleter func(T)) *UnboundedQueue[T] {
	q := &UnboundedQueue[T]{deleter: deleter}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues item at the back of the queue.
func (q *UnboundedQueue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, entry[T]{val: item})
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// PushTombstone enqueues a sentinel that releases exactly one blocked
// Pop call with ok=false, used to unblock a worker during shutdown.
func (q *UnboundedQueue[T]) PushTombstone() {
	q.mu.Lock()
	q.items = append(q.items, entry[T]{tombstone: true})
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Pop blocks until an item is available, returning ok=false if it was
// unblocked by a tombstone rather than a real item.
func (q *UnboundedQueue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	e := q.items[0]
	q.items = q.items[1:]
	if e.tombstone {
		return item, false
	}
	return e.val, true
}

// TryPop is the non-blocking form of Pop; ok is false if the queue was
// empty.
func (q *UnboundedQueue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	if e.tombstone {
		return item, false
	}
	return e.val, true
}

// TryPopOrFail behaves like TryPop but returns errs.ErrQueuePopEmpty
// instead of ok=false when the queue has no items.
func (q *UnboundedQueue[T]) TryPopOrFail() (T, error) {
	item, ok := q.TryPop()
	if !ok {
		return item, errs.ErrQueuePopEmpty
	}
	return item, nil
}

// TimedPop blocks until an item arrives or dur elapses, returning
// ok=false on timeout (the queue is left unchanged). Waiting is done
// on the queue's own condition variable rather than a detached
// goroutine, so a timeout never leaves a stray waiter behind to steal
// a later Push.
func (q *UnboundedQueue[T]) TimedPop(dur time.Duration) (item T, ok bool) {
	deadline := time.Now().Add(dur)
	timer := time.AfterFunc(dur, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if !time.Now().Before(deadline) {
			return item, false
		}
		q.notEmpty.Wait()
	}
	e := q.items[0]
	q.items = q.items[1:]
	if e.tombstone {
		return item, false
	}
	return e.val, true
}

// TimedPopOrFail behaves like TimedPop but returns
// errs.ErrQueuePopTimeout on timeout.
func (q *UnboundedQueue[T]) TimedPopOrFail(dur time.Duration) (T, error) {
	item, ok := q.TimedPop(dur)
	if !ok {
		return item, errs.ErrQueuePopTimeout
	}
	return item, nil
}

// TryStealBack is a non-blocking pop from the tail of the queue,
// giving LIFO order for work-stealing consumers.
func (q *UnboundedQueue[T]) TryStealBack() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 {
		last := len(q.items) - 1
		e := q.items[last]
		q.items = q.items[:last]
		if e.tombstone {
			continue
		}
		return e.val, true
	}
	return item, false
}

// Peek returns a read-only view of the item at index without removing
// it. Behavior is undefined if a consumer is popping concurrently.
func (q *UnboundedQueue[T]) Peek(index int) (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.items) {
		return item, false
	}
	e := q.items[index]
	if e.tombstone {
		return item, false
	}
	return e.val, true
}

// Len reports the number of entries currently queued, including
// unconsumed tombstones.
func (q *UnboundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently has no entries.
func (q *UnboundedQueue[T]) Empty() bool {
	return q.Len() == 0
}

// Clear drops all items, invoking the configured deleter once per
// live item. Callers must ensure no consumer is blocked in Pop at
// clear time.
func (q *UnboundedQueue[T]) Clear() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	if q.deleter == nil {
		return
	}
	for _, e := range items {
		if !e.tombstone {
			q.deleter(e.val)
		}
	}
}
