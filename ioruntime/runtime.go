// Package ioruntime implements the asynchronous I/O reactor at the
// heart of corenet: a worker-pool-driven epoll/kqueue loop scheduling
// socket completions, timers, and posted tasks. It is the Go
// realization of spec section 4.G, generalizing the teacher's
// read/write-only aiocb loop to the full read/write/accept/connect/
// send-to/receive-from verb set the transport layer needs.
package ioruntime

import (
	"container/heap"
	"container/list"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corenetio/corenet/internal/poller"
	"github.com/corenetio/corenet/queue"
	"github.com/sirupsen/logrus"
)

// fdDesc holds everything the loop tracks for one registered fd: its
// pending reader and writer queues, in submission order, and the
// identity it was registered under (for teardown).
type fdDesc struct {
	readers list.List
	writers list.List
	ptr     uintptr
	hasPtr  bool
}

// Config configures a Runtime. The zero value is usable.
type Config struct {
	// Namespace prefixes the runtime's prometheus metric names.
	// Defaults to "corenet" if empty.
	Namespace string
	// Logger receives structured diagnostics. A disabled logger is
	// used if nil, matching the ambient-logging convention described
	// in SPEC_FULL.md section 2.1.
	Logger *logrus.Logger
}

// Runtime is the async I/O reactor: one epoll/kqueue loop goroutine,
// one poller-wait goroutine, and a queue of completions waiting to be
// run by a worker.Pool.
type Runtime struct {
	pfd poller.Poller

	chEventNotify   chan poller.Events
	chPendingNotify chan struct{}

	pendingCreate     []*opcb
	pendingProcessing []*opcb
	pendingMutex      sync.Mutex

	descs      map[int]*fdDesc
	connIdents map[uintptr]int

	timeouts timedHeap
	timer    *time.Timer

	completions *queue.UnboundedQueue[func()]

	die     chan struct{}
	dieOnce sync.Once
	closing atomic.Bool

	keepAlive atomic.Int64

	metrics *metrics
	log     *logrus.Logger
}

// New creates a Runtime and starts its internal loop and poller-wait
// goroutines. Callers drive completions with Pool/Run/RunOne; the
// loop itself only multiplexes readiness and never runs user code.
func New(cfg Config) (*Runtime, error) {
	pfd, err := poller.New()
	if err != nil {
		return nil, err
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "corenet"
	}
	log := cfg.Logger
	if log == nil {
		log = disabledLogger()
	}

	rt := &Runtime{
		pfd:             pfd,
		chEventNotify:   make(chan poller.Events),
		chPendingNotify: make(chan struct{}, 1),
		descs:           make(map[int]*fdDesc),
		connIdents:      make(map[uintptr]int),
		timer:           time.NewTimer(0),
		completions:     queue.NewUnboundedQueue[func()](nil),
		die:             make(chan struct{}),
		metrics:         newMetrics(namespace),
		log:             log,
	}
	if !rt.timer.Stop() {
		<-rt.timer.C
	}

	go rt.pfd.Wait(rt.chEventNotify)
	go rt.loop()

	return rt, nil
}

func disabledLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(logrusDiscard{})
	return l
}

type logrusDiscard struct{}

func (logrusDiscard) Write(p []byte) (int, error) { return len(p), nil }

// Stop shuts the runtime down: it stops accepting new submissions and
// posted tasks, signals the internal loop and poller-wait goroutines
// to exit, and pushes a tombstone so workers blocked in RunOne return.
// It does not wait for the internal goroutines to exit. As the loop
// exits it releases every registered fd; the operations still pending
// there are cancelled, and their callbacks are not run because Post no
// longer accepts tasks. Per spec section 4.E this must
// happen in that order; Pool.Stop (joining worker goroutines) is the
// caller's responsibility and should run after Stop returns.
func (rt *Runtime) Stop() {
	rt.dieOnce.Do(func() {
		rt.closing.Store(true)
		close(rt.die)
		rt.pfd.Close()
		rt.completions.PushTombstone()
	})
}

// KeepAlive returns a release function whose existence (until called)
// prevents external callers from mistaking a transiently empty
// completion queue for full shutdown. It is bookkeeping only: the
// reactor's own goroutines are kept alive by Stop, not by token count.
func (rt *Runtime) KeepAlive() func() {
	rt.keepAlive.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			rt.keepAlive.Add(-1)
		})
	}
}

// KeepAliveCount reports the number of outstanding keep-alive tokens.
func (rt *Runtime) KeepAliveCount() int64 {
	return rt.keepAlive.Load()
}

// Post schedules task to run once on a worker.Pool goroutine, ahead of
// no ordering guarantee relative to any other posted task or I/O
// completion.
func (rt *Runtime) Post(task func()) {
	if rt.closing.Load() {
		return
	}
	rt.metrics.postedTasks.Inc()
	rt.completions.Push(func() {
		rt.metrics.postedTasks.Dec()
		task()
	})
}

// RunOne drains and executes exactly one completion, blocking until
// one is available or the runtime is stopped. It returns false once
// the runtime has been stopped and has no more completions to drain.
func (rt *Runtime) RunOne() bool {
	task, ok := rt.completions.Pop()
	if !ok {
		// Unblocked by our own shutdown tombstone; put one back so
		// sibling pool workers also wake up and exit.
		rt.completions.PushTombstone()
		return false
	}
	task()
	return true
}

// Run drives completions on the calling goroutine until the runtime
// stops.
func (rt *Runtime) Run() {
	for rt.RunOne() {
	}
}

// identOf returns the stable pointer identity used to key descs
// across repeated operations against "the same" conn value, and
// whether v is eligible at all (i.e. a pointer type, same restriction
// the teacher's watcher.go imposes on net.Conn).
func identOf(v interface{}) (uintptr, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return 0, false
	}
	return rv.Pointer(), true
}

// aioCreate is the single submission path every Async* method funnels
// through, mirroring the teacher's aioCreate: queue the request, then
// notify the loop goroutine.
func (rt *Runtime) aioCreate(pcb *opcb) {
	rt.pendingMutex.Lock()
	rt.pendingCreate = append(rt.pendingCreate, pcb)
	rt.pendingMutex.Unlock()

	select {
	case rt.chPendingNotify <- struct{}{}:
	default:
	}
}

func (rt *Runtime) deliver(pcb *opcb, res Result) {
	res.Op = pcb.op
	res.Buf = pcb.buffer
	rt.metrics.completions.Inc()
	cb := pcb.complete
	rt.Post(func() { cb(res) })
}

// the core reactor loop; never runs user code directly, only
// dispatches non-blocking syscalls and queues completions for Post.
func (rt *Runtime) loop() {
	defer func() {
		for ident := range rt.descs {
			rt.releaseConn(ident)
		}
	}()

	for {
		select {
		case <-rt.chPendingNotify:
			rt.pendingMutex.Lock()
			rt.pendingCreate, rt.pendingProcessing = rt.pendingProcessing, rt.pendingCreate
			pending := rt.pendingProcessing
			rt.pendingProcessing = rt.pendingProcessing[:0]
			rt.pendingMutex.Unlock()
			rt.handlePending(pending)

		case pe := <-rt.chEventNotify:
			rt.handleEvents(pe)

		case <-rt.timer.C:
			for rt.timeouts.Len() > 0 {
				now := time.Now()
				pcb := rt.timeouts[0]
				if now.After(pcb.deadline) || now.Equal(pcb.deadline) {
					pcb.l.Remove(pcb.elem)
					heap.Pop(&rt.timeouts)
					rt.metrics.timeoutsFired.Inc()
					rt.deliver(pcb, Result{Err: errDeadline})
				} else {
					rt.timer.Reset(pcb.deadline.Sub(now))
					break
				}
			}

		case <-rt.die:
			return
		}
	}
}
