package ioruntime

import (
	"container/heap"
	"container/list"
	"io"
	"syscall"

	"github.com/corenetio/corenet/internal/poller"
	"golang.org/x/sys/unix"
)

// handleEvents services one batch of readiness notifications: for
// each ready fd, it walks that fd's pending reader/writer list
// front-to-back (FIFO, per spec section 4.G's ordering guarantee),
// stopping at the first operation that is not yet satisfiable.
func (rt *Runtime) handleEvents(pe poller.Events) {
	for _, e := range pe {
		desc, ok := rt.descs[e.Ident]
		if !ok {
			continue
		}

		if e.Readable {
			rt.drainList(e.Ident, &desc.readers)
		}
		if e.Writable {
			rt.drainList(e.Ident, &desc.writers)
		}
	}
}

func (rt *Runtime) drainList(ident int, l *list.List) {
	var next *list.Element
	for elem := l.Front(); elem != nil; elem = next {
		next = elem.Next()
		pcb := elem.Value.(*opcb)

		if pcb.op == OpConnect {
			l.Remove(elem)
			if !pcb.deadline.IsZero() {
				heap.Remove(&rt.timeouts, pcb.idx)
			}
			rt.completeConnect(ident, pcb)
			continue
		}

		done, res := rt.tryIO(ident, pcb)
		if !done {
			break
		}
		l.Remove(elem)
		if !pcb.deadline.IsZero() {
			heap.Remove(&rt.timeouts, pcb.idx)
		}
		rt.deliver(pcb, res)
	}
}

// tryIO attempts a single non-blocking syscall for pcb and reports
// whether the operation is now complete (success or real error;
// EAGAIN is "not yet").
func (rt *Runtime) tryIO(fd int, pcb *opcb) (bool, Result) {
	switch pcb.op {
	case OpRead:
		return rt.tryRead(fd, pcb)
	case OpWrite:
		return rt.tryWrite(fd, pcb)
	case OpAccept:
		return rt.tryAccept(fd, pcb)
	case OpSendTo:
		return rt.trySendTo(fd, pcb)
	case OpRecvFrom:
		return rt.tryRecvFrom(fd, pcb)
	default:
		return true, Result{Err: errAborted}
	}
}

func (rt *Runtime) tryRead(fd int, pcb *opcb) (bool, Result) {
	for {
		n, err := syscall.Read(fd, pcb.buffer[pcb.size:])
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return false, Result{}
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return true, Result{N: pcb.size, Err: err}
		}
		if n == 0 {
			return true, Result{N: pcb.size, Err: io.EOF}
		}
		pcb.size += n
		if pcb.size == len(pcb.buffer) || !pcb.readFull {
			return true, Result{N: pcb.size}
		}
	}
}

func (rt *Runtime) tryWrite(fd int, pcb *opcb) (bool, Result) {
	for {
		n, err := syscall.Write(fd, pcb.buffer[pcb.size:])
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return false, Result{}
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return true, Result{N: pcb.size, Err: err}
		}
		pcb.size += n
		if pcb.size == len(pcb.buffer) {
			return true, Result{N: pcb.size}
		}
	}
}

func (rt *Runtime) tryAccept(fd int, pcb *opcb) (bool, Result) {
	newfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == unix.EAGAIN {
		return false, Result{}
	}
	if err != nil {
		if err == unix.ECONNABORTED || err == unix.EINTR {
			return false, Result{}
		}
		return true, Result{Err: err}
	}
	conn, werr := wrapFD(newfd)
	if werr != nil {
		return true, Result{Err: werr}
	}
	return true, Result{Conn: conn}
}

func (rt *Runtime) trySendTo(fd int, pcb *opcb) (bool, Result) {
	err := unix.Sendto(fd, pcb.buffer, 0, pcb.target)
	if err == unix.EAGAIN {
		return false, Result{}
	}
	if err != nil {
		return true, Result{Err: err}
	}
	return true, Result{N: len(pcb.buffer)}
}

func (rt *Runtime) tryRecvFrom(fd int, pcb *opcb) (bool, Result) {
	n, from, err := unix.Recvfrom(fd, pcb.buffer, 0)
	if err == unix.EAGAIN {
		return false, Result{}
	}
	if err != nil {
		return true, Result{Err: err}
	}
	return true, Result{N: n, Addr: fromSockaddr(from)}
}

// releaseConn tears down every data structure associated with ident:
// its pending operations (failed with errAborted), its timeout-heap
// entries, and the poller registration itself.
func (rt *Runtime) releaseConn(ident int) {
	desc, ok := rt.descs[ident]
	if !ok {
		return
	}

	abort := func(l *list.List) {
		for elem := l.Front(); elem != nil; elem = elem.Next() {
			pcb := elem.Value.(*opcb)
			if !pcb.deadline.IsZero() && pcb.idx >= 0 {
				heap.Remove(&rt.timeouts, pcb.idx)
			}
			rt.deliver(pcb, Result{Err: errAborted})
		}
	}
	abort(&desc.readers)
	abort(&desc.writers)

	delete(rt.descs, ident)
	if desc.hasPtr {
		delete(rt.connIdents, desc.ptr)
	}
	rt.pfd.Unwatch(ident)
	unix.Close(ident)
	rt.metrics.activeFDs.Dec()
}
