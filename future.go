package whiteboard

import (
	"context"
	"sync"

	"github.com/whiteboard-sdk/whiteboard.go/internal/queue"
)

// Future is the pending result of an asynchronous session operation. It is
// settled exactly once.
type Future[T any] struct {
	deliveries *queue.Serial

	once sync.Once
	done chan struct{}

	mu        sync.Mutex
	value     T
	err       error
	callbacks []func(T, error)
}

func newFuture[T any](deliveries *queue.Serial) *Future[T] {
	return &Future[T]{deliveries: deliveries, done: make(chan struct{})}
}

// resolved returns an already settled future.
func resolved[T any](deliveries *queue.Serial, v T, err error) *Future[T] {
	f := newFuture[T](deliveries)
	f.settle(v, err)
	return f
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done. Giving up on ctx
// does not cancel the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value. Before Done is closed it returns the
// zero value and a nil error.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Then registers cb to run on the session delivery queue once the future
// settles. Callbacks run in registration order.
func (f *Future[T]) Then(cb func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		v, err := f.value, f.err
		f.mu.Unlock()
		f.deliver(func() { cb(v, err) })
	default:
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
	}
}

func (f *Future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.value, f.err = v, err
		callbacks := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb := cb
			f.deliver(func() { cb(v, err) })
		}
	})
}

func (f *Future[T]) resolve(v T) {
	f.settle(v, nil)
}

func (f *Future[T]) reject(err error) {
	var zero T
	f.settle(zero, err)
}

// deliver runs job on the delivery queue, or inline once the session has
// shut its queue down.
func (f *Future[T]) deliver(job func()) {
	if f.deliveries == nil || !f.deliveries.Submit(job) {
		job()
	}
}
