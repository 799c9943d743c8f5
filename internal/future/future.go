// Package future provides a single-assignment value that concurrent
// readers can wait on. The engine uses one per resource to publish outputs
// to dependents once the resource is realized.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadySettled is returned when a future is resolved or rejected twice.
var ErrAlreadySettled = errors.New("future already settled")

// Future holds a value of type T that becomes available exactly once.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve publishes v to all current and future waiters.
func (f *Future[T]) Resolve(v T) error {
	return f.settle(v, nil)
}

// Reject publishes err to all current and future waiters.
func (f *Future[T]) Reject(err error) error {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) error {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		settled = true
	})
	if !settled {
		return ErrAlreadySettled
	}
	return nil
}

// Settled reports whether the future has been resolved or rejected.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
