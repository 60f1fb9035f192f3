package transport

import (
	"net"

	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/ioruntime"
	"github.com/corenetio/corenet/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// MaxDatagramBody is the largest buffer, header and body together,
// that SendAsync and SendSync accept for one UDP datagram, per spec
// section 4.L.
const MaxDatagramBody = 65507

// UDPConfig configures a UDPEndpoint. A given endpoint can be a
// sender, a receiver, or both: Broadcast configures the sending socket
// (the destination is given per send), and ReceivePort/MessageReceived
// configure the receiving socket.
type UDPConfig struct {
	Runtime   *ioruntime.Runtime
	Broadcast bool

	// ReceivePort is the port the receiving socket binds; 0 picks a
	// free port. A receiving socket is opened when ReceivePort is
	// non-zero or MessageReceived is set.
	ReceivePort         uint16
	CheckBytesRemaining CheckBytesRemaining
	MessageReceived     MessageReceived

	Log *logrus.Logger
}

// UDPEndpoint is the datagram sender/receiver pair of spec section
// 4.L. Async sends are serialized through a worker.Strand bound to
// this endpoint's sending socket, giving the ordering guarantee the
// spec requires without blocking the caller.
type UDPEndpoint struct {
	cfg UDPConfig
	rt  *ioruntime.Runtime
	log *logrus.Logger

	sendConn *net.UDPConn
	strand   *worker.Strand

	recvConn *net.UDPConn
}

// NewUDPEndpoint constructs a UDPEndpoint. The sending socket is
// opened lazily on the first Send*; the receiving socket, if
// ReceivePort or MessageReceived is set, is opened immediately and
// starts receiving.
func NewUDPEndpoint(cfg UDPConfig) (*UDPEndpoint, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	u := &UDPEndpoint{cfg: cfg, rt: cfg.Runtime, log: log}

	if cfg.ReceivePort != 0 || cfg.MessageReceived != nil {
		if err := u.startReceiver(); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *UDPEndpoint) startReceiver() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(u.cfg.ReceivePort)})
	if err != nil {
		return errs.Wrap(err, "bind udp receiver")
	}
	u.recvConn = conn
	u.armReceive()
	return nil
}

func (u *UDPEndpoint) armReceive() {
	buf := make([]byte, MaxDatagramBody)
	u.rt.AsyncReceiveFrom(u.recvConn, buf, func(res ioruntime.Result) {
		if res.Err != nil {
			if res.Err != errs.ErrAborted {
				u.log.WithError(res.Err).Warn("transport: udp receive failed")
			}
			return
		}
		datagram := res.Buf[:res.N]
		// UDP preserves message boundaries, so check-bytes-remaining
		// runs exactly once per datagram and must return 0 (spec
		// section 4.L).
		if n, err := u.cfg.CheckBytesRemaining(datagram); err != nil || n != 0 {
			u.log.WithField("remaining", n).Warn("transport: malformed udp datagram, dropping")
		} else {
			u.cfg.MessageReceived(datagram)
		}
		u.armReceive()
	})
}

func (u *UDPEndpoint) ensureSender() error {
	if u.sendConn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return errs.Wrap(err, "open udp sender")
	}
	if u.cfg.Broadcast {
		if rc, err := conn.SyscallConn(); err == nil {
			var sockErr error
			_ = rc.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if sockErr != nil {
				conn.Close()
				return errs.Wrap(sockErr, "set SO_BROADCAST")
			}
		}
	}
	u.sendConn = conn
	u.strand = worker.NewStrand()
	return nil
}

func (u *UDPEndpoint) validateSize(buf []byte) error {
	if len(buf) > MaxDatagramBody {
		return errs.Wrapf(errs.ErrTransport, "udp body %d exceeds %d byte cap", len(buf), MaxDatagramBody)
	}
	return nil
}

// SendAsync queues an async send of buf to addr, serialized against
// every other SendAsync/SendSync on this endpoint via the sending
// strand.
func (u *UDPEndpoint) SendAsync(addr Endpoint, buf []byte) error {
	if err := u.validateSize(buf); err != nil {
		return err
	}
	if err := u.ensureSender(); err != nil {
		return err
	}
	udpAddr := &net.UDPAddr{IP: net.ParseIP(addr.Host), Port: int(addr.Port)}
	u.strand.Post(func() {
		done := make(chan struct{})
		u.rt.AsyncSendTo(u.sendConn, udpAddr, buf, func(res ioruntime.Result) {
			if res.Err != nil && res.Err != errs.ErrAborted {
				u.log.WithError(res.Err).Debug("transport: udp send failed")
			}
			close(done)
		})
		<-done
	})
	return nil
}

// SendSync sends buf to addr and blocks until the send completes,
// returning whether it succeeded.
func (u *UDPEndpoint) SendSync(addr Endpoint, buf []byte) (bool, error) {
	if err := u.validateSize(buf); err != nil {
		return false, err
	}
	if err := u.ensureSender(); err != nil {
		return false, err
	}
	udpAddr := &net.UDPAddr{IP: net.ParseIP(addr.Host), Port: int(addr.Port)}

	result := make(chan bool, 1)
	u.strand.Post(func() {
		done := make(chan struct{})
		ok := false
		u.rt.AsyncSendTo(u.sendConn, udpAddr, buf, func(res ioruntime.Result) {
			ok = res.Err == nil
			close(done)
		})
		<-done
		result <- ok
	})
	return <-result, nil
}

// BroadcastAddr is a convenience constructor for the limited broadcast
// address at the given port.
func BroadcastAddr(port uint16) Endpoint {
	return Endpoint{Host: "255.255.255.255", Port: port}
}

// Close tears down whichever sockets this endpoint opened.
func (u *UDPEndpoint) Close() {
	if u.strand != nil {
		u.strand.Close()
	}
	if u.sendConn != nil {
		u.rt.Free(u.sendConn)
		_ = u.sendConn.Close()
	}
	if u.recvConn != nil {
		u.rt.Free(u.recvConn)
		_ = u.recvConn.Close()
	}
}
