package transport

import (
	"net"
	"strconv"

	"github.com/corenetio/corenet/errs"
	"github.com/corenetio/corenet/ioruntime"
	"github.com/corenetio/corenet/syncevent"
	"github.com/sirupsen/logrus"
)

// ServerConfig configures a Server. Runtime, MinAmountToRead,
// CheckBytesRemaining and MessageReceived are forwarded verbatim into
// every accepted Connection's ConnectionConfig.
type ServerConfig struct {
	Runtime             *ioruntime.Runtime
	ListenPort          uint16
	MinAmountToRead     int
	CheckBytesRemaining CheckBytesRemaining
	MessageReceived     MessageReceived
	SendOption          SendOption
	Log                 *logrus.Logger
}

// Server is the acceptor of spec section 4.J: it owns the listening
// socket, spawns a Connection per accepted peer, and registers each
// one in its Registry so SendToAll/SendAsync can address them by
// endpoint.
type Server struct {
	cfg      ServerConfig
	rt       *ioruntime.Runtime
	log      *logrus.Logger
	registry *Registry

	ln net.Listener

	closing  bool
	closeEvt *syncevent.Event
}

// NewServer constructs a Server bound to no socket yet; call Start to
// open the acceptor.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		cfg:      cfg,
		rt:       cfg.Runtime,
		log:      log,
		registry: NewRegistry(),
		closeEvt: syncevent.New(syncevent.NotifyAll, syncevent.ResetManual, syncevent.InitialUnsignalled),
	}
}

// Registry exposes the server's connection registry for SendAsync,
// SendToAll and similar fan-out operations.
func (s *Server) Registry() *Registry { return s.registry }

// Start opens the acceptor socket and submits the first async accept,
// per spec section 4.J's open_acceptor.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(s.cfg.ListenPort))))
	if err != nil {
		return errs.Wrap(err, "open acceptor")
	}
	s.ln = ln
	s.armAccept()
	return nil
}

// Addr returns the acceptor's bound address, useful when ListenPort
// was 0 ("pick any free port").
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) armAccept() {
	s.rt.AsyncAccept(s.ln, func(res ioruntime.Result) {
		if res.Err != nil {
			if res.Err == errs.ErrAborted {
				return
			}
			s.log.WithError(res.Err).Warn("transport: accept failed")
			return
		}
		s.onAccepted(res.Conn)
		s.armAccept()
	})
}

func (s *Server) onAccepted(conn net.Conn) {
	c, err := newConnection(conn, ConnectionConfig{
		Runtime:             s.rt,
		MinAmountToRead:     s.cfg.MinAmountToRead,
		CheckBytesRemaining: s.cfg.CheckBytesRemaining,
		MessageReceived:     s.cfg.MessageReceived,
		SendOption:          s.cfg.SendOption,
		Log:                 s.log,
		OnClosed:            s.registry.RemoveConn,
	})
	if err != nil {
		s.log.WithError(err).Warn("transport: dropping accepted connection")
		_ = conn.Close()
		return
	}
	s.registry.Add(c)
	c.Start()
}

// Close implements spec section 4.J's close_acceptor followed by
// closing every registered connection: the acceptor close is posted
// to the runtime and awaited, then every live connection is closed.
func (s *Server) Close() {
	if s.closing {
		s.closeEvt.Wait()
		return
	}
	s.closing = true
	if s.ln != nil {
		s.rt.Post(func() {
			_ = s.ln.Close()
			s.rt.Free(s.ln)
			s.closeEvt.Signal()
		})
		s.closeEvt.Wait()
	} else {
		s.closeEvt.Signal()
	}
	s.registry.CloseAll()
}
