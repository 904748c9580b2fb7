// Package sqldb is a database.Transactor that stores objects in PostgreSQL
// or MySQL through a store adapter.
//
// Every object has a row in the dbext_objects catalog, which allocates its
// oid and records its type, and a row keyed by the same oid in the table its
// type is registered to. Inserts and deletes run as soon as they are issued.
// Field changes on loaded objects are written back before a query runs and
// before commit.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/observability/logger"
)

const defaultRetryBackoff = 50 * time.Millisecond

// Store runs statements inside the transaction bound to their context.
type Store interface {
	WithTransactionOptions(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a SQL-backed object store.
type DB struct {
	store   Store
	schema  *Schema
	dialect Dialect
	logger  logger.Logger
	backoff time.Duration
}

var _ database.Transactor = (*DB)(nil)

// Option configures a DB.
type Option func(*DB)

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

// New returns a DB storing the types registered in schema.
func New(store Store, dialect Dialect, schema *Schema, opts ...Option) (*DB, error) {
	if store == nil {
		return nil, errors.New("sqldb: store is nil")
	}
	if schema == nil {
		return nil, errors.New("sqldb: schema is nil")
	}
	if dialect.columnType == nil {
		return nil, errors.New("sqldb: dialect is not initialized")
	}
	db := &DB{
		store:   store,
		schema:  schema,
		dialect: dialect,
		logger:  logger.NewNop(),
		backoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// EnsureSchema creates the catalog and every registered table if missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.store.ExecContext(ctx, db.dialect.catalogDDL); err != nil {
		return fmt.Errorf("sqldb: create catalog: %w", err)
	}
	tables := make([]*table, 0, len(db.schema.byName))
	for _, t := range db.schema.byName {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].name < tables[j].name })
	for _, t := range tables {
		ddl, err := t.createDDL(db.dialect)
		if err != nil {
			return err
		}
		if _, err := db.store.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqldb: create table %s: %w", t.name, err)
		}
	}
	db.logger.Info("schema ensured", "dialect", db.dialect.name, "tables", len(db.schema.byName))
	return nil
}

// Transact runs fn in a database transaction. Failures wrapping
// database.ErrRetryable, serialization failures and deadlocks are retried up
// to opts.MaxRetries times.
func (db *DB) Transact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) error {
	if fn == nil {
		return errors.New("sqldb: nil unit of work")
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
		if err != nil && db.retryable(err) {
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

func (db *DB) attempt(ctx context.Context, fn database.UnitOfWork, readOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.store.WithTransactionOptions(ctx, &sql.TxOptions{ReadOnly: readOnly}, func(txCtx context.Context) error {
		t := newTx(db, txCtx, readOnly)
		defer t.finish()

		if err := fn(t); err != nil {
			return err
		}
		if err := t.flush(); err != nil {
			return err
		}
		db.logger.WithContext(ctx).Debug("transaction committing", "changes", len(t.Changes()))
		return nil
	})
}

func (db *DB) retryable(err error) bool {
	return errors.Is(err, database.ErrRetryable) || db.dialect.retryable(err)
}
