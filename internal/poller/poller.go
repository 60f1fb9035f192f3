// Package poller wraps the platform-specific readiness notification
// mechanism (epoll on Linux, kqueue on the BSDs and Darwin) behind one
// minimal interface so that ioruntime never needs a build tag of its own.
package poller

// MaxEvents bounds how many readiness events a single Wait() call
// returns before the caller must loop back in for more.
const MaxEvents = 1024

// Event reports read/write readiness for one watched file descriptor.
type Event struct {
	Ident    int
	Readable bool
	Writable bool
}

// Events is a batch of readiness notifications delivered together so
// that the caller can amortize lock acquisition and channel sends
// across many tiny per-fd events.
type Events []Event

// Poller is implemented by poller_linux.go (epoll) and
// poller_kqueue.go (kqueue). Close is safe to call more than once.
type Poller interface {
	// Watch registers fd for read and write readiness notifications.
	Watch(fd int) error
	// Unwatch removes fd. Safe to call on an fd that was never watched.
	Unwatch(fd int) error
	// Wait blocks, delivering batches of readiness events to ch until
	// the poller is closed.
	Wait(ch chan Events)
	Close() error
}
