package worker

import "github.com/corenetio/corenet/queue"

// Strand serializes submissions onto a single background goroutine,
// the minimal construct that gives "one at a time" execution without
// a full actor framework. corenet's UDP sender uses a Strand to
// enforce the ordering guarantee the spec requires for a single
// socket's outbound datagrams.
type Strand struct {
	tasks  *queue.UnboundedQueue[func()]
	thread *Thread
}

// NewStrand starts the strand's background goroutine immediately.
func NewStrand() *Strand {
	s := &Strand{tasks: queue.NewUnboundedQueue[func()](nil)}
	s.thread = &Thread{
		Iterate: func() {
			task, ok := s.tasks.Pop()
			if ok {
				task()
			}
		},
		OnTerminate: func() {
			s.tasks.PushTombstone()
		},
	}
	s.thread.Start()
	return s
}

// Post schedules task to run on the strand's goroutine, after every
// task already posted.
func (s *Strand) Post(task func()) {
	s.tasks.Push(task)
}

// Close stops the strand's goroutine and waits for it to exit, which
// happens once the task it is running, if any, returns. Tasks already
// posted but not yet run are discarded, and a task posted after Close
// is queued but never run.
func (s *Strand) Close() {
	s.thread.Stop()
}
