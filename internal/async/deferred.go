// Package async provides the single-resolution future used to bridge
// asynchronous request/response exchanges into awaiting callers.
package async

import (
	"context"
	"sync"
)

// Deferred is a single-resolution future. It is created unresolved and
// settled exactly once by Resolve or Reject; every later settlement
// attempt is ignored rather than raised. Await may be called by any
// number of goroutines before or after settlement.
type Deferred[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewDeferred creates an unresolved Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles the future with a value. Returns false if the future
// was already settled, in which case the value is discarded.
func (d *Deferred[T]) Resolve(value T) bool {
	settled := false
	d.once.Do(func() {
		d.value = value
		close(d.done)
		settled = true
	})
	return settled
}

// Reject settles the future with an error. Returns false if the future
// was already settled, in which case the error is discarded.
func (d *Deferred[T]) Reject(err error) bool {
	settled := false
	d.once.Do(func() {
		d.err = err
		close(d.done)
		settled = true
	})
	return settled
}

// Await blocks until the future settles or ctx is done. A context error
// stops the wait only; the future itself stays pending and may still be
// settled later.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the future settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether the future has been resolved or rejected.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
