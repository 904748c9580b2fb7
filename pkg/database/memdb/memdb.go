// Package memdb is an in-process database.Transactor for samples and tests.
//
// Transactions are serialized: one unit of work runs at a time, working on
// copies of the committed objects. Committing swaps the copies in. Units of
// work must not start another transaction on the same DB.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/observability/logger"
)

const defaultRetryBackoff = 10 * time.Millisecond

// DB is an in-memory object store.
type DB struct {
	mu      sync.Mutex
	objects map[uint64]any
	lastOid uint64
	types   map[string]reflect.Type
	logger  logger.Logger
	backoff time.Duration
}

var _ database.Transactor = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

// WithTypes registers struct types so SQL queries can name them before any
// object of that type has been inserted. Type names match case-insensitively.
func WithTypes(samples ...any) Option {
	return func(db *DB) {
		for _, s := range samples {
			if t := database.EntityType(s); t != nil && t.Kind() == reflect.Struct {
				db.types[strings.ToLower(t.Name())] = t
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(db *DB) {
		if log != nil {
			db.logger = log
		}
	}
}

// WithRetryBackoff sets the pause between retried attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.backoff = d
		}
	}
}

// New returns an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		objects: make(map[uint64]any),
		types:   make(map[string]reflect.Type),
		logger:  logger.NewNop(),
		backoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Transact runs fn in a transaction. A failure wrapping database.ErrRetryable
// is retried up to opts.MaxRetries times.
func (db *DB) Transact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) error {
	if fn == nil {
		return errors.New("memdb: nil unit of work")
	}
	o := database.TransactOptions{}
	if opts != nil {
		o = *opts
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	backoff := retry.WithMaxRetries(uint64(o.MaxRetries), retry.NewConstant(db.backoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := db.attempt(ctx, fn, o.ReadOnly)
		if err != nil && errors.Is(err, database.ErrRetryable) {
			db.logger.WithContext(ctx).Debug("retrying transaction", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// TransactAsync runs Transact on a new goroutine.
func (db *DB) TransactAsync(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) *database.Future {
	return database.Go(func() error {
		return db.Transact(ctx, fn, opts)
	})
}

// TryTransact runs Transact and reports whether it committed.
func (db *DB) TryTransact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) bool {
	if err := db.Transact(ctx, fn, opts); err != nil {
		db.logger.WithContext(ctx).Debug("transaction did not commit", "error", err)
		return false
	}
	return true
}

// Len returns the number of committed objects.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.objects)
}

func (db *DB) attempt(ctx context.Context, fn database.UnitOfWork, readOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	t := newTx(db, readOnly)
	defer t.finish()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memdb: transaction aborted before commit: %w", err)
	}
	return t.commit()
}

func (db *DB) register(t reflect.Type) {
	key := strings.ToLower(t.Name())
	if _, ok := db.types[key]; !ok {
		db.types[key] = t
	}
}

// clone returns a new pointer to a shallow copy of the struct obj points to.
func clone(obj any) any {
	v := reflect.ValueOf(obj).Elem()
	c := reflect.New(v.Type())
	c.Elem().Set(v)
	return c.Interface()
}
