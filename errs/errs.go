// Package errs defines the sentinel error kinds raised across corenet,
// matching the taxonomy of the framing and transport layers so that
// callers can branch with errors.Is regardless of which layer wrapped
// the error with additional context.
package errs

import "github.com/pkg/errors"

var (
	// ErrMessageLength is raised when a frame is shorter than a header,
	// or a header's TotalLength is less than the frame actually received.
	ErrMessageLength = errors.New("corenet: frame length invalid")

	// ErrMagicMismatch is raised when a frame's magic does not match
	// the façade's configured magic string.
	ErrMagicMismatch = errors.New("corenet: magic mismatch")

	// ErrArchiveType is raised for an unknown archive kind, or Raw
	// requested against a non-POD value.
	ErrArchiveType = errors.New("corenet: unsupported archive type")

	// ErrUnknownConnection is raised when a registry lookup misses.
	ErrUnknownConnection = errors.New("corenet: unknown connection")

	// ErrQueuePopTimeout is raised by TimedPopOrFail on timeout.
	ErrQueuePopTimeout = errors.New("corenet: queue pop timed out")

	// ErrQueuePopEmpty is raised by TryPopOrFail on an empty queue.
	ErrQueuePopEmpty = errors.New("corenet: queue is empty")

	// ErrThreadNotStarted is raised by accessors on a worker.Thread
	// that has not been started, or has already stopped.
	ErrThreadNotStarted = errors.New("corenet: worker thread not started")

	// ErrThreadGroup is raised by worker.Pool.Add when the thread is
	// already a member. worker.Pool does not detect a self-join.
	ErrThreadGroup = errors.New("corenet: thread group error")

	// ErrMessageHandler is raised when a decoder or handler invariant
	// is violated inside mqueue.Thread.
	ErrMessageHandler = errors.New("corenet: message handler error")

	// ErrAborted marks an I/O completion cancelled by a socket close.
	// It is not a real transport failure and completion handlers
	// should swallow it rather than treat the connection as broken.
	ErrAborted = errors.New("corenet: operation aborted")

	// ErrTransport is the catch-all for any other I/O failure; the
	// connection that raised it is destroyed and removed from its
	// registry.
	ErrTransport = errors.New("corenet: transport error")

	// ErrClosed marks operations attempted after Close/Stop.
	ErrClosed = errors.New("corenet: closed")

	// ErrDeadlineExceeded marks an async operation that missed its
	// deadline.
	ErrDeadlineExceeded = errors.New("corenet: deadline exceeded")

	// ErrEmptyBuffer is raised when a caller supplies a zero-length
	// buffer to an operation that requires one.
	ErrEmptyBuffer = errors.New("corenet: empty buffer")

	// ErrUnsupportedConn is raised when a net.Conn does not expose a
	// raw file descriptor (SyscallConn) for the runtime to register.
	ErrUnsupportedConn = errors.New("corenet: connection type unsupported")
)

// Wrap annotates err with msg while preserving errors.Is/As against
// the sentinel kinds above.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted form of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
