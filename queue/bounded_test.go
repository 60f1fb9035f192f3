package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBufferFIFO(t *testing.T) {
	b := NewBoundedBuffer[int](4)
	for i := 0; i < 4; i++ {
		b.PushFront(i)
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, i, b.PopBack())
	}
}

func TestBoundedBufferPushBlocksWhenFull(t *testing.T) {
	b := NewBoundedBuffer[int](1)
	b.PushFront(1)

	pushed := make(chan struct{})
	go func() {
		b.PushFront(2)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("PushFront on a full buffer returned before a PopBack")
	case <-time.After(50 * time.Millisecond):
	}

	require.Equal(t, 1, b.PopBack())

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("PushFront did not unblock after PopBack freed a slot")
	}
	assert.Equal(t, 2, b.PopBack())
}

func TestBoundedBufferPopBlocksWhenEmpty(t *testing.T) {
	b := NewBoundedBuffer[int](2)

	popped := make(chan int)
	go func() {
		popped <- b.PopBack()
	}()

	select {
	case <-popped:
		t.Fatal("PopBack on an empty buffer returned before a PushFront")
	case <-time.After(50 * time.Millisecond):
	}

	b.PushFront(7)
	select {
	case v := <-popped:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("PopBack did not unblock after PushFront")
	}
}

func TestBoundedBufferConcurrentProducersConsumers(t *testing.T) {
	b := NewBoundedBuffer[int](8)
	const n = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.PushFront(i)
		}
	}()

	sum := 0
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			sum += b.PopBack()
		}
	}()
	wg.Wait()

	assert.Equal(t, n*(n-1)/2, sum)
	assert.Equal(t, 0, b.Len())
}
