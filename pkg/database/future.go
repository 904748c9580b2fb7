package database

import (
	"context"
	"fmt"
)

// Future is the pending outcome of an asynchronous transaction.
type Future struct {
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine and returns a Future for its outcome. A panic
// in fn is reported as an error.
func Go(fn func() error) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				f.err = fmt.Errorf("transaction panicked: %v", p)
			}
		}()
		f.err = fn()
	}()
	return f
}

// Resolved returns a Future that has already completed with err.
func Resolved(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed once the transaction has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the outcome. It must only be called after Done is closed.
func (f *Future) Err() error { return f.err }

// Wait blocks until the transaction finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValueFuture is the pending outcome of TransactValueAsync.
type ValueFuture[T any] struct {
	future *Future
	value  T
}

// Done is closed once the transaction has finished.
func (f *ValueFuture[T]) Done() <-chan struct{} { return f.future.Done() }

// Wait blocks until the transaction finishes and returns the committed value.
func (f *ValueFuture[T]) Wait(ctx context.Context) (T, error) {
	if err := f.future.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return f.value, nil
}
