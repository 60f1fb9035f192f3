package ioruntime

import (
	"net"
	"time"

	"github.com/corenetio/corenet/errs"
)

var zeroTime = time.Time{}

// AsyncRead submits a non-blocking read of up to len(buf) bytes from
// conn into buf. cb runs once the read completes, fails, or is
// cancelled by a concurrent Free(conn).
func (rt *Runtime) AsyncRead(conn net.Conn, buf []byte, cb func(Result)) {
	rt.AsyncReadDeadline(conn, buf, zeroTime, cb)
}

// AsyncReadDeadline is AsyncRead with an optional deadline.
func (rt *Runtime) AsyncReadDeadline(conn net.Conn, buf []byte, deadline time.Time, cb func(Result)) {
	rt.submitIO(OpRead, conn, buf, deadline, false, cb)
}

// AsyncReadFull reads until buf is completely filled, an error occurs,
// or deadline passes.
func (rt *Runtime) AsyncReadFull(conn net.Conn, buf []byte, deadline time.Time, cb func(Result)) {
	if len(buf) == 0 {
		cb(Result{Err: errs.ErrEmptyBuffer})
		return
	}
	rt.submitIO(OpRead, conn, buf, deadline, true, cb)
}

// AsyncWrite submits a non-blocking write of buf to conn. cb runs once
// every byte has been written or an error occurs.
func (rt *Runtime) AsyncWrite(conn net.Conn, buf []byte, cb func(Result)) {
	rt.AsyncWriteDeadline(conn, buf, zeroTime, cb)
}

// AsyncWriteDeadline is AsyncWrite with an optional deadline.
func (rt *Runtime) AsyncWriteDeadline(conn net.Conn, buf []byte, deadline time.Time, cb func(Result)) {
	if len(buf) == 0 {
		cb(Result{Err: errs.ErrEmptyBuffer})
		return
	}
	rt.submitIO(OpWrite, conn, buf, deadline, false, cb)
}

func (rt *Runtime) submitIO(op OpType, src interface{}, buf []byte, deadline time.Time, readFull bool, cb func(Result)) {
	if rt.closing.Load() {
		cb(Result{Err: errs.ErrClosed})
		return
	}
	pcb := &opcb{op: op, src: src, buffer: buf, deadline: deadline, readFull: readFull, complete: cb}
	rt.aioCreate(pcb)
}

// AsyncAccept submits a single accept on ln. cb receives the accepted
// net.Conn on success. The caller must call AsyncAccept again from
// within cb to keep accepting further connections; this one-shot
// shape matches AsyncRead/AsyncWrite and is what lets TcpServer
// "re-arm accept" per spec section 4.J.
func (rt *Runtime) AsyncAccept(ln net.Listener, cb func(Result)) {
	if rt.closing.Load() {
		cb(Result{Err: errs.ErrClosed})
		return
	}
	pcb := &opcb{op: OpAccept, src: ln, complete: cb}
	rt.aioCreate(pcb)
}

// AsyncConnect initiates a non-blocking TCP connect to addr. cb
// receives the established net.Conn on success.
func (rt *Runtime) AsyncConnect(addr *net.TCPAddr, deadline time.Time, cb func(Result)) {
	if rt.closing.Load() {
		cb(Result{Err: errs.ErrClosed})
		return
	}
	sa, err := udpSockaddr(&net.UDPAddr{IP: addr.IP, Port: addr.Port, Zone: addr.Zone})
	if err != nil {
		cb(Result{Err: err})
		return
	}
	pcb := &opcb{op: OpConnect, target: sa, deadline: deadline, complete: cb}
	rt.aioCreate(pcb)
}

// AsyncSendTo submits a non-blocking, single-datagram send on conn to
// addr. Ordering across calls against the same conn is only
// guaranteed if the caller serializes them (e.g. via a worker.Strand),
// per spec section 4.L.
func (rt *Runtime) AsyncSendTo(conn net.PacketConn, addr *net.UDPAddr, buf []byte, cb func(Result)) {
	if rt.closing.Load() {
		cb(Result{Err: errs.ErrClosed})
		return
	}
	sa, err := udpSockaddr(addr)
	if err != nil {
		cb(Result{Err: err})
		return
	}
	pcb := &opcb{op: OpSendTo, src: conn, buffer: buf, target: sa, complete: cb}
	rt.aioCreate(pcb)
}

// AsyncReceiveFrom submits a non-blocking receive of one datagram on
// conn into buf. cb's Result.Addr reports the sender.
func (rt *Runtime) AsyncReceiveFrom(conn net.PacketConn, buf []byte, cb func(Result)) {
	if rt.closing.Load() {
		cb(Result{Err: errs.ErrClosed})
		return
	}
	pcb := &opcb{op: OpRecvFrom, src: conn, buffer: buf, complete: cb}
	rt.aioCreate(pcb)
}

// Free releases the runtime's registration for src immediately,
// closing its duplicated fd. The caller's own net.Conn/net.Listener
// value is unaffected and should still be closed by the caller.
func (rt *Runtime) Free(src interface{}) {
	ptr, hasPtr := identOf(src)
	if !hasPtr {
		return
	}
	pcb := &opcb{op: opDelete}
	rt.pendingMutex.Lock()
	if ident, ok := rt.connIdents[ptr]; ok {
		pcb.fd = ident
		rt.pendingCreate = append(rt.pendingCreate, pcb)
	}
	rt.pendingMutex.Unlock()

	select {
	case rt.chPendingNotify <- struct{}{}:
	default:
	}
}
