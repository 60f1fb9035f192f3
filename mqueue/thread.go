// Package mqueue implements the message-dispatching worker thread
// that lets user handler code run off the I/O goroutines: a single
// background goroutine drains a FIFO queue of raw frames, decodes
// each one's message ID, and invokes the handler registered for that
// ID.
package mqueue

import (
	"sync"

	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/queue"
	"github.com/corenetio/corenet/worker"
	"github.com/sirupsen/logrus"
)

// Decoder extracts a message ID from a raw frame without throwing;
// decode errors should be reported through the returned error instead.
type Decoder func(frame []byte) (id uint32, err error)

// Handler processes one frame. Returning true tells the queue it may
// release the frame (ordinary garbage collection, since corenet frames
// are plain []byte); returning false means the handler has taken
// ownership and retained a reference beyond the call.
type Handler func(frame []byte) (release bool)

// OnDestroy selects what Thread.Stop does with items still queued.
type OnDestroy int

const (
	// DiscardRemaining drops whatever is still queued at Stop.
	DiscardRemaining OnDestroy = iota
	// ProcessRemaining drains the queue before Stop returns.
	ProcessRemaining
)

// Thread is the Go realization of spec section 4.F's
// MessageQueueThread: one background goroutine, one FIFO of pending
// frames, and a handler map keyed by decoded message ID.
type Thread struct {
	decoder   Decoder
	onDestroy OnDestroy
	log       *logrus.Logger

	mu       sync.Mutex
	handlers map[uint32]Handler

	queue  *queue.UnboundedQueue[[]byte]
	thread *worker.Thread
}

// New creates and starts a Thread. decoder must not panic; any error
// it returns is logged and the frame is discarded.
func New(decoder Decoder, onDestroy OnDestroy, log *logrus.Logger) *Thread {
	if log == nil {
		log = logrus.New()
	}
	t := &Thread{
		decoder:   decoder,
		onDestroy: onDestroy,
		log:       log,
		handlers:  make(map[uint32]Handler),
		queue:     queue.NewUnboundedQueue[[]byte](nil),
	}
	t.thread = &worker.Thread{
		Iterate:     t.processNext,
		OnTerminate: t.queue.PushTombstone,
	}
	t.thread.Start()
	return t
}

// RegisterHandler binds a handler to a message ID. It returns
// errs.ErrMessageHandler if a handler for id is already registered.
func (t *Thread) RegisterHandler(id uint32, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[id]; exists {
		return errs.Wrapf(errs.ErrMessageHandler, "handler already registered for id %d", id)
	}
	t.handlers[id] = h
	return nil
}

// Push enqueues a frame for dispatch.
func (t *Thread) Push(frame []byte) {
	t.queue.Push(frame)
}

// Stop joins the background goroutine. If configured with
// ProcessRemaining, every frame still queued is dispatched first.
func (t *Thread) Stop() {
	t.thread.Stop()
	if t.onDestroy == ProcessRemaining {
		for {
			frame, ok := t.queue.TryPop()
			if !ok {
				break
			}
			t.dispatch(frame)
		}
	} else {
		t.queue.Clear()
	}
}

func (t *Thread) processNext() {
	frame, ok := t.queue.Pop()
	if !ok {
		return
	}
	t.dispatch(frame)
}

func (t *Thread) dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.log.WithField("panic", r).Error("mqueue: handler panicked, message discarded")
		}
	}()

	id, err := t.decoder(frame)
	if err != nil {
		t.log.WithError(err).Warn("mqueue: decode failed, message discarded")
		return
	}

	t.mu.Lock()
	h, ok := t.handlers[id]
	t.mu.Unlock()

	if !ok {
		t.log.WithField("id", id).Debug("mqueue: no handler registered, message discarded")
		return
	}
	h(frame)
}
