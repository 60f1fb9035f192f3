//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	fd int

	mu     sync.Mutex
	closed bool
	die    chan struct{}
}

// New creates the platform readiness notifier.
func New() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{fd: fd, die: make(chan struct{})}, nil
}

func (p *kqueuePoller) Watch(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_CLEAR},
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Unwatch(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	unix.Kevent(p.fd, changes, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(ch chan Events) {
	events := make([]unix.Kevent_t, MaxEvents)
	for {
		n, err := unix.Kevent(p.fd, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case <-p.die:
				return
			default:
			}
			continue
		}

		byIdent := make(map[int]Event)
		for i := 0; i < n; i++ {
			e := events[i]
			ident := int(e.Ident)
			ev := byIdent[ident]
			ev.Ident = ident
			switch e.Filter {
			case unix.EVFILT_READ:
				ev.Readable = true
			case unix.EVFILT_WRITE:
				ev.Writable = true
			}
			if e.Flags&unix.EV_EOF != 0 {
				ev.Readable = true
				ev.Writable = true
			}
			byIdent[ident] = ev
		}

		batch := make(Events, 0, len(byIdent))
		for _, ev := range byIdent {
			batch = append(batch, ev)
		}

		select {
		case ch <- batch:
		case <-p.die:
			return
		}
	}
}

func (p *kqueuePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.die)
	return unix.Close(p.fd)
}
