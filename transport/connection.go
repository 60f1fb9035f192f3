package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/ioruntime"
	"github.com/corenetio/corenet/syncevent"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State names one of the framing state machine's states, spec
// section 4.H.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReadingMin
	StateReadingRest
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReadingMin:
		return "reading-min"
	case StateReadingRest:
		return "reading-rest"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SendOption selects the socket's Nagle configuration.
type SendOption int

const (
	NagleOn SendOption = iota
	NagleOff
)

// defaultRecvReserve is the receive buffer's initial reservation per
// spec section 3 ("reserved >= 512 KiB").
const defaultRecvReserve = 512 * 1024

// CheckBytesRemaining inspects the bytes accumulated so far for the
// in-flight frame and reports how many more bytes are needed before
// the frame is complete (spec section 9's result-returning
// reformulation of "check_bytes_remaining", replacing the throw-based
// original with an explicit error return).
type CheckBytesRemaining func(buf []byte) (remaining int, err error)

// MessageReceived is invoked once per complete frame with its full
// byte slice. The slice is only valid for the duration of the call;
// callers that need to retain it must copy.
type MessageReceived func(buf []byte)

// ConnectionConfig configures a Connection's framing behavior. It
// corresponds to the "config surface" of spec section 6.
type ConnectionConfig struct {
	Runtime             *ioruntime.Runtime
	MinAmountToRead     int
	CheckBytesRemaining CheckBytesRemaining
	MessageReceived     MessageReceived
	SendOption          SendOption
	Log                 *logrus.Logger

	// OnClosed, if set, is invoked exactly once when the connection
	// reaches StateClosed, so an owning Registry can remove its entry.
	OnClosed func(*Connection)
}

// Connection is the per-socket framed read/write state machine of
// spec section 4.H. It is reference-counted: the registry holds one
// share and each outstanding async completion closure implicitly
// holds another by capturing the Connection value (Go's garbage
// collector keeps the struct itself alive regardless; the refcount
// here governs only when a closing connection reaches StateClosed and
// runs OnClosed, while the socket itself is closed by the task that
// Close posts).
type Connection struct {
	ID uuid.UUID

	cfg  ConnectionConfig
	conn net.Conn
	rt   *ioruntime.Runtime
	log  *logrus.Logger

	mu    sync.Mutex
	state State

	recvBuf  []byte
	received int

	refcount atomic.Int32
	closing  atomic.Bool
	closeEvt *syncevent.Event

	remote Endpoint
	local  Endpoint
}

// newConnection wraps an already-established net.Conn. The caller
// must call Start to begin the read loop.
func newConnection(conn net.Conn, cfg ConnectionConfig) (*Connection, error) {
	if cfg.MinAmountToRead <= 0 {
		cfg.MinAmountToRead = 1
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	remote, err := endpointFromAddr(conn.RemoteAddr())
	if err != nil {
		return nil, err
	}
	local, err := endpointFromAddr(conn.LocalAddr())
	if err != nil {
		return nil, err
	}

	c := &Connection{
		ID:       uuid.New(),
		cfg:      cfg,
		conn:     conn,
		rt:       cfg.Runtime,
		log:      log,
		state:    StateIdle,
		recvBuf:  make([]byte, 0, defaultRecvReserve),
		closeEvt: syncevent.New(syncevent.NotifyAll, syncevent.ResetManual, syncevent.InitialUnsignalled),
		remote:   remote,
		local:    local,
	}
	c.refcount.Store(1) // the registry's share.
	c.applyNagle()
	return c, nil
}

func (c *Connection) applyNagle() {
	tc, ok := c.conn.(*net.TCPConn)
	if !ok {
		return
	}
	if c.cfg.SendOption == NagleOff {
		_ = tc.SetNoDelay(true)
	} else {
		_ = tc.SetNoDelay(false)
	}
}

// RemoteEndpoint returns the peer's (host, port).
func (c *Connection) RemoteEndpoint() Endpoint { return c.remote }

// LocalEndpoint returns this socket's local (host, port), the value
// ConnectionRegistry.LocalEndpointForRemote reports.
func (c *Connection) LocalEndpoint() Endpoint { return c.local }

// State reports the connection's current framing state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// acquire increments the reference count; release decrements it and,
// upon reaching zero while closing, runs the registry-notification
// step of the close protocol.
func (c *Connection) acquire() { c.refcount.Add(1) }

func (c *Connection) release() {
	if c.refcount.Add(-1) == 0 && c.closing.Load() {
		c.finishClose()
	}
}

// Start transitions out of Idle and begins the continuous read loop
// described in spec section 4.H.
func (c *Connection) Start() {
	c.setState(StateReadingMin)
	c.armRead()
}

func (c *Connection) armRead() {
	if c.closing.Load() {
		return
	}
	buf := make([]byte, c.cfg.MinAmountToRead)
	c.acquire()
	c.rt.AsyncReadFull(c.conn, buf, time.Time{}, func(res ioruntime.Result) {
		defer c.release()
		c.onReadMin(res)
	})
}

// onReadMin handles the completion of the ReadingMin read, spec
// section 4.H steps 2-3: aborted reads close quietly, any other error
// tears the connection down, a short read restarts the wait, and a
// full read hands off to the check-bytes-remaining loop.
func (c *Connection) onReadMin(res ioruntime.Result) {
	if res.Err != nil {
		c.handleReadError(res.Err)
		return
	}
	c.recvBuf = append(c.recvBuf[:0], res.Buf...)
	c.received = len(c.recvBuf)
	c.continueFrame()
}

func (c *Connection) handleReadError(err error) {
	if err == errs.ErrAborted {
		c.setState(StateClosed)
		return
	}
	c.setState(StateClosed)
	c.Close()
}

// continueFrame runs the check-bytes-remaining callback and either
// submits the next ReadingRest read or delivers the complete frame
// and loops back to ReadingMin, per spec section 4.H steps 3-4.
func (c *Connection) continueFrame() {
	n, err := c.cfg.CheckBytesRemaining(c.recvBuf)
	if err != nil {
		c.log.WithError(err).Warn("transport: malformed frame, dropping and resuming")
		c.setState(StateReadingMin)
		c.armRead()
		return
	}

	if n > 0 {
		c.setState(StateReadingRest)
		tail := make([]byte, n)
		c.acquire()
		c.rt.AsyncReadFull(c.conn, tail, time.Time{}, func(res ioruntime.Result) {
			defer c.release()
			if res.Err != nil {
				c.handleReadError(res.Err)
				return
			}
			c.recvBuf = append(c.recvBuf, res.Buf...)
			c.received = len(c.recvBuf)
			c.continueFrame()
		})
		return
	}

	frame := c.recvBuf
	c.cfg.MessageReceived(frame)
	c.recvBuf = make([]byte, 0, defaultRecvReserve)
	c.received = 0
	c.setState(StateReadingMin)
	c.armRead()
}

// SendAsync posts an async write of buf. The write completion holds
// its own implicit share so the connection survives until the write
// finishes even if the registry drops its share in the meantime.
func (c *Connection) SendAsync(buf []byte) {
	if c.closing.Load() {
		return
	}
	c.acquire()
	c.rt.AsyncWrite(c.conn, buf, func(res ioruntime.Result) {
		defer c.release()
		if res.Err != nil && res.Err != errs.ErrAborted {
			c.log.WithError(res.Err).Debug("transport: send failed")
		}
	})
}

// SendSync writes buf and blocks the caller until the write completes,
// returning whether it succeeded, per spec section 4.H's send_sync.
func (c *Connection) SendSync(buf []byte) bool {
	done := syncevent.NewAutoReset()
	ok := false
	c.acquire()
	c.rt.AsyncWrite(c.conn, buf, func(res ioruntime.Result) {
		ok = res.Err == nil
		done.Signal()
		c.release()
	})
	done.Wait()
	return ok
}

// Close implements the close protocol of spec section 4.H: idempotent
// (per SPEC_FULL.md's resolution of the source's inverted is_open
// guard — "if already closed, return; else post close and wait"),
// safe to call from inside a completion handler, and guaranteed to
// run the actual socket close on the I/O runtime rather than the
// caller's goroutine.
func (c *Connection) Close() {
	if c.closing.CompareAndSwap(false, true) {
		c.setState(StateClosing)
		c.rt.Post(func() {
			_ = c.conn.Close()
			c.rt.Free(c.conn)
			c.closeEvt.Signal()
		})
		c.release() // drop the share the caller's reference to this Connection implied.
	}
	c.closeEvt.Wait()
}

func (c *Connection) finishClose() {
	c.setState(StateClosed)
	if c.cfg.OnClosed != nil {
		c.cfg.OnClosed(c)
	}
}
