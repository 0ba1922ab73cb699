// Package events keeps the custom ("magix") event subscriptions of a
// session and delivers engine events to them.
//
// There is at most one subscription per event name. Subscribing again
// replaces the previous subscription. High frequency subscriptions
// coalesce deliveries into windows of at least
// [constants.MinHighFrequencyInterval]; what a window delivers is chosen
// with [WithCoalesce]:
//
//   - CoalesceBatch (default) delivers every event of the window, in order.
//   - CoalesceLatest delivers only the last event of the window.
//
// Either way a subscriber gets at most one notification per window.
package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/internal/clock"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// Event is a named custom event relayed by the engine.
type Event struct {
	Name     string `json:"event" cbor:"event"`
	Payload  any    `json:"payload,omitempty" cbor:"payload,omitempty"`
	AuthorID int64  `json:"authorId,omitempty" cbor:"authorId,omitempty"`
	Scope    string `json:"scope,omitempty" cbor:"scope,omitempty"`
}

type Handler func(Event)

type BatchHandler func([]Event)

type Coalesce int

const (
	CoalesceBatch Coalesce = iota
	CoalesceLatest
)

func (c Coalesce) String() string {
	switch c {
	case CoalesceBatch:
		return "batch"
	case CoalesceLatest:
		return "latest"
	}
	return fmt.Sprintf("coalesce(%d)", int(c))
}

type Option func(*Registry)

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithCoalesce(c Coalesce) Option {
	return func(r *Registry) { r.coalesce = c }
}

// WithDeliver sets where handlers run. The session passes its ordered
// delivery queue; the default runs handlers on the dispatching goroutine.
func WithDeliver(deliver func(func())) Option {
	return func(r *Registry) { r.deliver = deliver }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

type subscription struct {
	name     string
	handler  Handler
	batch    BatchHandler
	interval time.Duration
	pending  []Event
	timer    clock.Timer
}

type Registry struct {
	mu       sync.Mutex
	subs     map[string]*subscription
	clock    clock.Clock
	coalesce Coalesce
	deliver  func(func())
	logger   logger.Logger
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		subs:    make(map[string]*subscription),
		clock:   clock.Real(),
		deliver: func(f func()) { f() },
		logger:  logger.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ClampInterval raises intervals below the minimum to the minimum.
func ClampInterval(d time.Duration) time.Duration {
	if d < constants.MinHighFrequencyInterval {
		return constants.MinHighFrequencyInterval
	}
	return d
}

// Subscribe registers h for every event called name.
func (r *Registry) Subscribe(name string, h Handler) {
	r.replace(&subscription{name: name, handler: h})
}

// SubscribeHighFrequency registers h for windowed delivery of events
// called name and returns the interval actually used.
func (r *Registry) SubscribeHighFrequency(name string, interval time.Duration, h BatchHandler) time.Duration {
	interval = ClampInterval(interval)
	r.replace(&subscription{name: name, batch: h, interval: interval})
	return interval
}

func (r *Registry) replace(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.subs[sub.name]; ok {
		old.stop()
	}
	r.subs[sub.name] = sub
}

// Unsubscribe removes the subscription for name. Events of a pending high
// frequency window are dropped. It reports whether one existed.
func (r *Registry) Unsubscribe(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[name]
	if !ok {
		return false
	}
	sub.stop()
	delete(r.subs, name)
	return true
}

// Interval returns the window of the subscription for name; zero for a
// plain subscription. ok is false when nothing is subscribed.
func (r *Registry) Interval(name string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[name]
	if !ok {
		return 0, false
	}
	return sub.interval, true
}

// Names returns the subscribed event names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.subs))
	for n := range r.subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes ev to its subscriber. It reports whether anyone was
// subscribed.
func (r *Registry) Dispatch(ev Event) bool {
	r.mu.Lock()
	sub, ok := r.subs[ev.Name]
	if !ok {
		r.mu.Unlock()
		return false
	}

	if sub.interval == 0 {
		h := sub.handler
		r.mu.Unlock()
		r.deliver(func() { r.safeCall(ev.Name, func() { h(ev) }) })
		return true
	}
	defer r.mu.Unlock()

	if r.coalesce == CoalesceLatest {
		sub.pending = append(sub.pending[:0], ev)
	} else {
		sub.pending = append(sub.pending, ev)
	}
	if sub.timer == nil {
		sub.timer = r.clock.AfterFunc(sub.interval, func() { r.flush(sub) })
	}
	return true
}

func (r *Registry) flush(sub *subscription) {
	r.mu.Lock()
	if cur, ok := r.subs[sub.name]; !ok || cur != sub {
		r.mu.Unlock()
		return
	}
	batch := sub.pending
	sub.pending = nil
	sub.timer = nil
	h := sub.batch
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	r.deliver(func() { r.safeCall(sub.name, func() { h(batch) }) })
}

// Close drops every subscription and pending window.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, sub := range r.subs {
		sub.stop()
		delete(r.subs, name)
	}
}

func (s *subscription) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

func (r *Registry) safeCall(name string, f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("custom event handler panicked", "event", name, "panic", fmt.Sprint(rec))
		}
	}()
	f()
}
