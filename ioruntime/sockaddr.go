package ioruntime

import (
	"net"
	"syscall"

	"github.com/corenetio/corenet/errs"
	"golang.org/x/sys/unix"
)

// rawConner is implemented by both net.Conn and net.Listener
// (*net.TCPListener, *net.TCPConn, *net.UDPConn, ...), which is why
// dupFD can register either a connection or an acceptor the same way.
type rawConner interface {
	SyscallConn() (syscall.RawConn, error)
}

// dupFD duplicates the raw file descriptor underlying src, the same
// rawconn-based trick the teacher uses in dupconn(): it lets the
// runtime own a stable, poller-safe fd even after the original
// net.Conn/net.Listener value is garbage collected or explicitly
// closed by the caller.
func dupFD(src interface{}) (fd int, err error) {
	sc, ok := src.(rawConner)
	if !ok {
		return -1, errs.ErrUnsupportedConn
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, errs.Wrap(err, "obtain raw conn")
	}

	var dupfd int
	var dupErr error
	ctrlErr := rc.Control(func(fd uintptr) {
		dupfd, dupErr = unix.Dup(int(fd))
	})
	if ctrlErr != nil {
		return -1, errs.Wrap(ctrlErr, "control raw conn")
	}
	if dupErr != nil {
		return -1, errs.Wrap(dupErr, "dup fd")
	}
	return dupfd, nil
}

// udpSockaddr converts a resolved UDP endpoint into the raw sockaddr
// the unix syscalls expect, supporting both IPv4 and IPv6.
func udpSockaddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip16 := addr.IP.To16()
	if ip16 == nil {
		return nil, errs.Wrap(errs.ErrTransport, "invalid IP address")
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip16)
	return sa, nil
}

// fromSockaddr is the inverse of udpSockaddr, used to report the
// sender of a received datagram.
func fromSockaddr(sa unix.Sockaddr) *net.UDPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	default:
		return nil
	}
}
