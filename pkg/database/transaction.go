// Package database defines the capability interfaces shared by transactor
// decorators and engine bindings: a Transactor runs units of work inside a
// transaction boundary and hands each attempt a Context.
package database

import (
	"context"
	"time"
)

// TransactOptions describes how a unit of work should run. Decorators pass
// it through unchanged; only engines interpret it.
type TransactOptions struct {
	// MaxRetries is the number of additional attempts an engine may make when
	// the unit of work fails with ErrRetryable.
	MaxRetries int
	ReadOnly   bool
	// Timeout bounds the whole transaction, retries included. Zero means none.
	Timeout time.Duration
}

// UnitOfWork is the callback executed inside a transaction.
type UnitOfWork func(db Context) error

// Transactor executes units of work atomically. If the unit of work returns an
// error the transaction is rolled back, otherwise it is committed.
type Transactor interface {
	Transact(ctx context.Context, fn UnitOfWork, opts *TransactOptions) error
	// TransactAsync runs the unit of work in the background.
	TransactAsync(ctx context.Context, fn UnitOfWork, opts *TransactOptions) *Future
	// TryTransact reports whether the transaction committed instead of returning the failure.
	TryTransact(ctx context.Context, fn UnitOfWork, opts *TransactOptions) bool
}

// TransactValue runs a value-returning unit of work and returns its result
// once the transaction has committed.
func TransactValue[T any](ctx context.Context, tr Transactor, fn func(db Context) (T, error), opts *TransactOptions) (T, error) {
	var result T
	err := tr.Transact(ctx, func(db Context) error {
		v, err := fn(db)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// TransactValueAsync is the asynchronous form of TransactValue.
func TransactValueAsync[T any](ctx context.Context, tr Transactor, fn func(db Context) (T, error), opts *TransactOptions) *ValueFuture[T] {
	vf := &ValueFuture[T]{}
	vf.future = tr.TransactAsync(ctx, func(db Context) error {
		v, err := fn(db)
		if err != nil {
			return err
		}
		vf.value = v
		return nil
	}, opts)
	return vf
}

type defaultedTransactor struct {
	inner    Transactor
	defaults TransactOptions
}

// WithDefaultOptions returns a Transactor that substitutes defaults whenever a
// caller passes nil options. Explicit options are forwarded untouched.
func WithDefaultOptions(tr Transactor, defaults TransactOptions) Transactor {
	return &defaultedTransactor{inner: tr, defaults: defaults}
}

func (d *defaultedTransactor) options(opts *TransactOptions) *TransactOptions {
	if opts != nil {
		return opts
	}
	o := d.defaults
	return &o
}

func (d *defaultedTransactor) Transact(ctx context.Context, fn UnitOfWork, opts *TransactOptions) error {
	return d.inner.Transact(ctx, fn, d.options(opts))
}

func (d *defaultedTransactor) TransactAsync(ctx context.Context, fn UnitOfWork, opts *TransactOptions) *Future {
	return d.inner.TransactAsync(ctx, fn, d.options(opts))
}

func (d *defaultedTransactor) TryTransact(ctx context.Context, fn UnitOfWork, opts *TransactOptions) bool {
	return d.inner.TryTransact(ctx, fn, d.options(opts))
}
