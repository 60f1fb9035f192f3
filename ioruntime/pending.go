package ioruntime

import (
	"container/heap"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// handlePending registers new fds and attempts each freshly submitted
// operation once before parking it on its fdDesc's reader/writer list,
// exactly the teacher's "try immediately, queue on EAGAIN" shape.
func (rt *Runtime) handlePending(pending []*opcb) {
	for _, pcb := range pending {
		if pcb.op == opDelete {
			rt.releaseConn(pcb.fd)
			continue
		}

		if pcb.op == OpConnect {
			rt.beginConnect(pcb)
			continue
		}

		ident, desc, err := rt.resolveDesc(pcb)
		if err != nil {
			rt.deliver(pcb, Result{Err: err})
			continue
		}
		pcb.fd = ident

		switch pcb.op {
		case OpRead, OpAccept, OpRecvFrom:
			if desc.readers.Len() == 0 {
				if done, res := rt.tryIO(ident, pcb); done {
					rt.deliver(pcb, res)
					continue
				}
			}
			pcb.l = &desc.readers
			pcb.elem = pcb.l.PushBack(pcb)
		case OpWrite, OpSendTo:
			if desc.writers.Len() == 0 {
				if done, res := rt.tryIO(ident, pcb); done {
					rt.deliver(pcb, res)
					continue
				}
			}
			pcb.l = &desc.writers
			pcb.elem = pcb.l.PushBack(pcb)
		}

		if !pcb.deadline.IsZero() {
			heap.Push(&rt.timeouts, pcb)
			if rt.timeouts.Len() == 1 {
				rt.timer.Reset(time.Until(pcb.deadline))
			}
		}
	}
}

// resolveDesc registers pcb.src's fd on first use (duplicating it so
// the runtime owns a stable descriptor independent of the caller's
// net.Conn/net.Listener lifetime) and returns its fdDesc, reusing the
// existing registration on subsequent calls for "the same" src.
func (rt *Runtime) resolveDesc(pcb *opcb) (int, *fdDesc, error) {
	ptr, hasPtr := identOf(pcb.src)
	if hasPtr {
		if ident, ok := rt.connIdents[ptr]; ok {
			return ident, rt.descs[ident], nil
		}
	}

	fd, err := dupFD(pcb.src)
	if err != nil {
		return 0, nil, err
	}
	if werr := rt.pfd.Watch(fd); werr != nil {
		unix.Close(fd)
		return 0, nil, werr
	}

	desc := &fdDesc{ptr: ptr, hasPtr: hasPtr}
	rt.descs[fd] = desc
	if hasPtr {
		rt.connIdents[ptr] = fd
	}
	rt.metrics.activeFDs.Inc()
	return fd, desc, nil
}

// beginConnect creates a fresh non-blocking socket and issues a
// non-blocking connect(2). A connect that completes synchronously
// (common for loopback peers) is delivered immediately; otherwise the
// fd is parked on the writer list and completion is detected via
// write readiness, exactly as POSIX specifies for non-blocking
// connect.
func (rt *Runtime) beginConnect(pcb *opcb) {
	sa := pcb.target
	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		rt.deliver(pcb, Result{Err: err})
		return
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		rt.deliver(pcb, Result{Err: err})
		return
	}

	if werr := rt.pfd.Watch(fd); werr != nil {
		unix.Close(fd)
		rt.deliver(pcb, Result{Err: werr})
		return
	}

	pcb.fd = fd
	desc := &fdDesc{}
	rt.descs[fd] = desc
	rt.metrics.activeFDs.Inc()

	if err == nil {
		// Connected synchronously.
		rt.completeConnect(fd, pcb)
		return
	}

	pcb.l = &desc.writers
	pcb.elem = pcb.l.PushBack(pcb)
	if !pcb.deadline.IsZero() {
		heap.Push(&rt.timeouts, pcb)
		if rt.timeouts.Len() == 1 {
			rt.timer.Reset(time.Until(pcb.deadline))
		}
	}
}

// completeConnect checks SO_ERROR, wraps fd as a net.Conn on success,
// and releases the bookkeeping fdDesc either way (the returned net.Conn
// gets its own, independent registration the first time the caller
// issues a read or write against it).
func (rt *Runtime) completeConnect(fd int, pcb *opcb) {
	soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	var res Result
	switch {
	case gerr != nil:
		res.Err = gerr
	case soErr != 0:
		res.Err = syscall.Errno(soErr)
	default:
		conn, werr := wrapFD(fd)
		if werr != nil {
			res.Err = werr
		} else {
			res.Conn = conn
		}
	}
	rt.releaseConn(fd)
	rt.deliver(pcb, res)
}

// wrapFD adopts a raw, already-connected fd as a net.Conn so the rest
// of the transport layer only ever deals in net.Conn/net.PacketConn
// values, never raw descriptors. os.NewFile+net.FileConn duplicates
// fd internally, so the original is closed once the wrap succeeds.
func wrapFD(fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), "")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return conn, nil
}
