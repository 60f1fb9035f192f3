package ioruntime

import (
	"container/list"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// OpType names one of the reactor's async verbs.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
	OpAccept
	OpConnect
	OpSendTo
	OpRecvFrom
	opDelete // internal: release resources associated with a conn/fd
)

// Result is delivered to the callback supplied to an async operation.
// Fields not relevant to the operation that produced it are zero.
type Result struct {
	Op   OpType
	N    int
	Err  error
	Conn net.Conn     // populated for OpAccept and OpConnect
	Addr *net.UDPAddr // populated for OpRecvFrom
	Buf  []byte       // the buffer the operation read into or wrote from
}

// opcb ("operation control block") is the reactor's internal request
// record, directly descended from the teacher's aiocb: one struct per
// pending operation, living on exactly one of a fdDesc's reader/writer
// lists while pending, and in the timeout heap if it carries a
// deadline.
type opcb struct {
	op  OpType
	fd  int
	src interface{} // net.Conn (read/write/send-to/recv-from) or net.Listener (accept); nil for connect

	buffer   []byte
	size     int // bytes transferred so far
	err      error
	readFull bool

	// OpConnect / OpSendTo destination.
	target unix.Sockaddr

	// OpRecvFrom: peer the datagram arrived from.
	fromAddr *net.UDPAddr

	deadline time.Time
	idx      int // heap index, maintained by container/heap

	l    *list.List
	elem *list.Element

	complete func(Result)
}
