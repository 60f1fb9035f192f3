package worker

import (
	"runtime"
	"sync"

	"github.com/corenetio/corenet/errs"
)

// Pool is a group of worker threads all iterating the same function,
// the driving force behind the I/O runtime (for example with
// ioruntime.Runtime.RunOne as the iterate function).
// Default size is hardware concurrency with a floor of 1.
type Pool struct {
	mu      sync.Mutex
	threads []*Thread
}

// DefaultSize returns runtime.GOMAXPROCS(0), floored at 1.
func DefaultSize() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// NewPool creates a pool of n threads, each running iterate in its own
// goroutine. n is floored at 1. iterate must be safe to call
// concurrently from multiple goroutines.
func NewPool(n int, iterate func()) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{}
	for i := 0; i < n; i++ {
		t := &Thread{Iterate: iterate}
		p.threads = append(p.threads, t)
	}
	return p
}

// Add registers an already-constructed thread with the pool. It
// returns errs.ErrThreadGroup if the thread is already a member.
func (p *Pool) Add(t *Thread) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.threads {
		if existing == t {
			return errs.ErrThreadGroup
		}
	}
	p.threads = append(p.threads, t)
	return nil
}

// Start launches every thread in the pool. Idempotent per-thread.
func (p *Pool) Start() {
	p.mu.Lock()
	threads := append([]*Thread(nil), p.threads...)
	p.mu.Unlock()
	for _, t := range threads {
		t.Start()
	}
}

// Stop joins every thread in the pool. Threads are stopped
// concurrently so that one thread's OnTerminate hook unblocking a
// shared resource doesn't stall the others' shutdown.
func (p *Pool) Stop() {
	p.mu.Lock()
	threads := append([]*Thread(nil), p.threads...)
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(threads))
	for _, t := range threads {
		t := t
		go func() {
			defer wg.Done()
			t.Stop()
		}()
	}
	wg.Wait()
}

// Len reports the number of member threads.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}
