// Package transport implements the framed TCP/UDP transport layer
// described in spec sections 3 and 4.H-4.L: per-connection read/write
// state machines, the endpoint-keyed connection registry, the
// acceptor and auto-reconnecting client wrappers, and the UDP
// sender/receiver pair, all scheduled on a shared ioruntime.Runtime.
package transport

import (
	"fmt"
	"net"
	"strconv"

	"github.com/corenetio/corenet/codec"
)

// Endpoint is the transport layer's (host, port) address, identical
// to codec.Endpoint so a response address built by the façade can be
// used directly to address a registry lookup without conversion.
type Endpoint = codec.Endpoint

// NullEndpoint is the distinguished "no explicit address" value.
var NullEndpoint = codec.NullEndpoint

// EndpointString renders host:port.
func EndpointString(e Endpoint) string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// endpointFromAddr derives an Endpoint from a net.Addr as returned by
// RemoteAddr()/LocalAddr(), the key ConnectionRegistry uses to
// address a connection per spec section 4.I.
func endpointFromAddr(addr net.Addr) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: malformed address %q: %w", addr.String(), err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("transport: malformed port %q: %w", portStr, err)
	}
	return Endpoint{Host: host, Port: uint16(port)}, nil
}
