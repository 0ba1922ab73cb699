// Package queue provides the per-session serial executors: one applies
// mutating commands in submission order, the other delivers notifications
// in engine order.
package queue

import (
	"fmt"
	"sync"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// Serial runs submitted jobs one at a time, in submission order, on a
// single goroutine. Submit never blocks; the backlog is unbounded.
type Serial struct {
	name   string
	logger logger.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool

	done chan struct{}
}

func NewSerial(name string, log logger.Logger) *Serial {
	s := &Serial{
		name:   name,
		logger: log,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Submit queues job. It returns false once the executor is closed, in
// which case job is never run.
func (s *Serial) Submit(job func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.jobs = append(s.jobs, job)
	s.cond.Signal()
	return true
}

// Close stops accepting jobs. Jobs already queued still run. Done is
// closed after the last one returns.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// Done is closed when the executor has drained after Close.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

// Len returns the number of jobs waiting to run.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Serial) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.jobs) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.jobs) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.jobs[0]
		s.jobs[0] = nil
		s.jobs = s.jobs[1:]
		s.mu.Unlock()

		s.runJob(job)
	}
}

// runJob isolates a panicking job so later jobs still run.
func (s *Serial) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("queue job panicked", "queue", s.name, "panic", fmt.Sprint(r))
		}
	}()
	job()
}
