package transport

import (
	"net"
	"sync"
	"time"

	"github.com/corenetio/corenet/ioruntime"
	"github.com/sirupsen/logrus"
)

// ClientConfig configures a Client. PeerEndpoint is the remote the
// client (re)connects to.
type ClientConfig struct {
	Runtime             *ioruntime.Runtime
	PeerEndpoint        Endpoint
	MinAmountToRead     int
	CheckBytesRemaining CheckBytesRemaining
	MessageReceived     MessageReceived
	SendOption          SendOption
	ConnectTimeout      time.Duration
	Log                 *logrus.Logger
}

// Client is the single-peer auto-reconnecting wrapper of spec
// section 4.K. Construction attempts an initial connect and swallows
// failure; every send first checks whether the registry is empty and,
// if so, attempts a fresh connect before submitting the send.
type Client struct {
	cfg ClientConfig
	rt  *ioruntime.Runtime
	log *logrus.Logger

	registry *Registry

	mu         sync.Mutex
	connecting bool
}

// NewClient constructs a Client and attempts its initial connection.
// A failed initial connect is logged, not returned: the client
// remains viable and will retry on the next send.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	c := &Client{
		cfg:      cfg,
		rt:       cfg.Runtime,
		log:      log,
		registry: NewRegistry(),
	}
	c.tryConnect(nil)
	return c
}

// Registry exposes the client's (at most one entry) connection
// registry.
func (c *Client) Registry() *Registry { return c.registry }

// tryConnect submits a non-blocking connect to the configured peer.
// onDone, if non-nil, runs once the attempt resolves either way.
func (c *Client) tryConnect(onDone func(ok bool)) {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		if onDone != nil {
			onDone(false)
		}
		return
	}
	c.connecting = true
	c.mu.Unlock()

	addr := &net.TCPAddr{IP: net.ParseIP(c.cfg.PeerEndpoint.Host), Port: int(c.cfg.PeerEndpoint.Port)}
	var deadline time.Time
	if c.cfg.ConnectTimeout > 0 {
		deadline = time.Now().Add(c.cfg.ConnectTimeout)
	}

	c.rt.AsyncConnect(addr, deadline, func(res ioruntime.Result) {
		defer func() {
			c.mu.Lock()
			c.connecting = false
			c.mu.Unlock()
		}()

		if res.Err != nil {
			c.log.WithError(res.Err).WithField("peer", EndpointString(c.cfg.PeerEndpoint)).
				Debug("transport: connect failed, will retry on next send")
			if onDone != nil {
				onDone(false)
			}
			return
		}

		conn, err := newConnection(res.Conn, ConnectionConfig{
			Runtime:             c.rt,
			MinAmountToRead:     c.cfg.MinAmountToRead,
			CheckBytesRemaining: c.cfg.CheckBytesRemaining,
			MessageReceived:     c.cfg.MessageReceived,
			SendOption:          c.cfg.SendOption,
			Log:                 c.log,
			OnClosed:            c.registry.RemoveConn,
		})
		if err != nil {
			c.log.WithError(err).Warn("transport: dropping connected peer")
			_ = res.Conn.Close()
			if onDone != nil {
				onDone(false)
			}
			return
		}
		c.registry.Add(conn)
		conn.Start()
		if onDone != nil {
			onDone(true)
		}
	})
}

// ensureConnected reconnects synchronously (relative to the caller,
// not the I/O runtime) if the registry is currently empty, matching
// spec section 4.K's "every send_* call first checks whether the
// registry is empty".
func (c *Client) ensureConnected() {
	if !c.registry.Empty() {
		return
	}
	done := make(chan struct{})
	c.tryConnect(func(bool) { close(done) })
	<-done
}

// SendAsync reconnects if necessary, then submits an async send to
// the peer. If the peer is unreachable, the send is silently dropped,
// matching spec section 7's "async sends never return status".
func (c *Client) SendAsync(buf []byte) {
	c.ensureConnected()
	_ = c.registry.SendAsync(c.cfg.PeerEndpoint, buf)
}

// SendSync reconnects if necessary, then submits a blocking send to
// the peer, returning whether it succeeded.
func (c *Client) SendSync(buf []byte) bool {
	c.ensureConnected()
	ok, err := c.registry.SendSync(c.cfg.PeerEndpoint, buf)
	return err == nil && ok
}

// Close closes the client's connection, if any.
func (c *Client) Close() {
	c.registry.CloseAll()
}
