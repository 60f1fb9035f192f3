package transport

import (
	"sync"

	"github.com/corenetio/corenet/errs"
)

// Registry is the endpoint-keyed connection map of spec section 4.I,
// guarded by one mutex. CloseAll and SendToAll copy the registered
// connections under that mutex and then close or send to them outside
// it.
type Registry struct {
	mu    sync.Mutex
	byKey map[Endpoint]*Connection
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[Endpoint]*Connection)}
}

// Add registers conn under its remote endpoint. A conn already
// present under that key is replaced without being closed; callers
// that care about that case should check beforehand.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	r.byKey[conn.RemoteEndpoint()] = conn
	r.mu.Unlock()
}

// RemoveConn removes conn if it is still the entry registered for its
// own endpoint (guards against removing a newer connection that has
// since replaced it under the same key).
func (r *Registry) RemoveConn(conn *Connection) {
	r.mu.Lock()
	if existing, ok := r.byKey[conn.RemoteEndpoint()]; ok && existing == conn {
		delete(r.byKey, conn.RemoteEndpoint())
	}
	r.mu.Unlock()
}

// RemoveEndpoint unconditionally removes whatever connection is keyed
// by endpoint.
func (r *Registry) RemoveEndpoint(endpoint Endpoint) {
	r.mu.Lock()
	delete(r.byKey, endpoint)
	r.mu.Unlock()
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Empty reports whether the registry has no connections.
func (r *Registry) Empty() bool {
	return r.Len() == 0
}

// Get returns the connection registered for endpoint, if any.
func (r *Registry) Get(endpoint Endpoint) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byKey[endpoint]
	return conn, ok
}

// CloseAll closes every registered connection and clears the map.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byKey))
	for _, c := range r.byKey {
		conns = append(conns, c)
	}
	r.byKey = make(map[Endpoint]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// SendAsync submits an async send to the connection registered under
// endpoint. It returns errs.ErrUnknownConnection if no such connection
// is registered.
func (r *Registry) SendAsync(endpoint Endpoint, buf []byte) error {
	conn, ok := r.Get(endpoint)
	if !ok {
		return errs.Wrapf(errs.ErrUnknownConnection, "no connection for %s", EndpointString(endpoint))
	}
	conn.SendAsync(buf)
	return nil
}

// SendSync submits a blocking send to the connection registered under
// endpoint, returning whether the write itself succeeded, and
// errs.ErrUnknownConnection if no such connection is registered.
func (r *Registry) SendSync(endpoint Endpoint, buf []byte) (bool, error) {
	conn, ok := r.Get(endpoint)
	if !ok {
		return false, errs.Wrapf(errs.ErrUnknownConnection, "no connection for %s", EndpointString(endpoint))
	}
	return conn.SendSync(buf), nil
}

// SendToAll submits an async send of buf to every registered
// connection, spec section 4.I's broadcast. Iteration order is
// unspecified.
func (r *Registry) SendToAll(buf []byte) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.byKey))
	for _, c := range r.byKey {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.SendAsync(buf)
	}
}

// LocalEndpointForRemote reports the local (host, port) side of the
// socket registered for remote, holding the lock for the whole
// lookup-and-query per SPEC_FULL.md's resolution of the open question
// over source variants that disagreed on this.
func (r *Registry) LocalEndpointForRemote(remote Endpoint) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byKey[remote]
	if !ok {
		return Endpoint{}, errs.Wrapf(errs.ErrUnknownConnection, "no connection for %s", EndpointString(remote))
	}
	return conn.LocalEndpoint(), nil
}
