package whiteboard

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/whiteboard-sdk/whiteboard.go/internal/queue"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// ListenerID identifies a host callback registered on a session.
type ListenerID uint64

// signal holds the host callbacks of one notification kind.
type signal[T any] struct {
	name string

	mu    sync.RWMutex
	funcs map[ListenerID]func(T)
}

func newSignal[T any](name string) *signal[T] {
	return &signal[T]{name: name, funcs: make(map[ListenerID]func(T))}
}

func (s *signal[T]) add(id ListenerID, fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[id] = fn
}

func (s *signal[T]) remove(id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.funcs[id]; !ok {
		return false
	}
	delete(s.funcs, id)
	return true
}

// snapshot returns the callbacks in registration order.
func (s *signal[T]) snapshot() []func(T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]ListenerID, 0, len(s.funcs))
	for id := range s.funcs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = s.funcs[id]
	}
	return out
}

// listeners is the host callback surface of a session. Notifications are
// queued on the delivery queue and resolved against the listeners present
// when they run.
type listeners struct {
	next       atomic.Uint64
	deliveries *queue.Serial
	logger     logger.Logger

	removers []func(ListenerID) bool
}

func newListeners(deliveries *queue.Serial, log logger.Logger) *listeners {
	return &listeners{deliveries: deliveries, logger: log}
}

func (l *listeners) id() ListenerID {
	return ListenerID(l.next.Add(1))
}

// remove drops id from whichever signal holds it.
func (l *listeners) remove(id ListenerID) bool {
	for _, rm := range l.removers {
		if rm(id) {
			return true
		}
	}
	return false
}

func register[T any](l *listeners, name string) *signal[T] {
	s := newSignal[T](name)
	l.removers = append(l.removers, s.remove)
	return s
}

func listen[T any](l *listeners, s *signal[T], fn func(T)) ListenerID {
	id := l.id()
	s.add(id, fn)
	return id
}

// emit queues v for every listener of s. It reports false once the
// session stopped delivering.
func emit[T any](l *listeners, s *signal[T], v T) bool {
	return l.deliveries.Submit(func() {
		for _, fn := range s.snapshot() {
			l.call(s.name, func() { fn(v) })
		}
	})
}

// call isolates a panicking listener so the rest of the pass still runs.
func (l *listeners) call(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener panicked", "listener", name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
