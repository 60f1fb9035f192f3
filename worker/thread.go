// Package worker implements the long-running cooperative thread
// abstraction that powers both the I/O runtime's pool and any
// single-goroutine strand a caller needs to serialize work onto.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/corenetio/corenet/errs"
)

// Thread is a long-running goroutine with a start/stop/join lifecycle.
// Callers supply the per-iteration work as Iterate; OnTerminate, if
// set, is invoked once before the final join to unblock any resource
// Iterate might be parked on (e.g. push a tombstone onto its inbox).
type Thread struct {
	// Iterate is called repeatedly while the thread is running. It
	// should do one unit of work and return; returning does not stop
	// the thread, only Stop does.
	Iterate func()
	// OnTerminate, if set, runs once when Stop is called, after the
	// thread is marked as stopping and before Stop waits for the
	// goroutine to exit.
	OnTerminate func()

	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Start begins running Iterate in a new goroutine. Start is idempotent:
// calling it again while already running is a no-op.
func (t *Thread) Start() {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	t.done = make(chan struct{})
	t.once = sync.Once{}
	go t.loop()
}

func (t *Thread) loop() {
	defer close(t.done)
	for t.running.Load() {
		t.Iterate()
	}
}

// Stop transitions the thread to terminating, runs OnTerminate, and
// blocks until the goroutine has exited. Stop is safe to call more
// than once and on a thread that was never started.
func (t *Thread) Stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	t.once.Do(func() {
		if t.OnTerminate != nil {
			t.OnTerminate()
		}
	})
	<-t.done
}

// Running reports whether the thread is currently active. Go exposes
// no public native thread handle, so Running (rather than a
// thread-id accessor) is corenet's stand-in for the source library's
// ThreadId()/NativeHandle() queries.
func (t *Thread) Running() bool {
	return t.running.Load()
}

// RequireRunning returns errs.ErrThreadNotStarted if the thread is not
// currently running, for accessors that must fail the way the source
// library's ThreadId()/NativeHandle() do.
func (t *Thread) RequireRunning() error {
	if !t.Running() {
		return errs.ErrThreadNotStarted
	}
	return nil
}
