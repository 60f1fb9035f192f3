//go:build linux

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	fd int

	mu     sync.Mutex
	closed bool
	die    chan struct{}
}

// New creates the platform readiness notifier.
func New() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd, die: make(chan struct{})}, nil
}

func (p *epollPoller) Watch(fd int) error {
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Unwatch(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(ch chan Events) {
	events := make([]unix.EpollEvent, MaxEvents)
	for {
		n, err := unix.EpollWait(p.fd, events, -1)
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

		batch := make(Events, 0, n)
		for i := 0; i < n; i++ {
			e := events[i]
			batch = append(batch, Event{
				Ident:    int(e.Fd),
				Readable: e.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
				Writable: e.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			})
		}

		select {
		case ch <- batch:
		case <-p.die:
			return
		}
	}
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.die)
	return unix.Close(p.fd)
}
