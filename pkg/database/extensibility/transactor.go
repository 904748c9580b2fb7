// Package extensibility decorates a database.Transactor with enter/leave hooks
// and a database.Context with intercepted operations. The wrapped transactor
// keeps ownership of commit, rollback and retry; decorators only observe and
// augment each attempt.
package extensibility

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/observability/logger"
)

// TransactorBase wraps every unit of work of an inner transactor with the
// Enter, Execute, Leave pipeline.
type TransactorBase struct {
	inner  database.Transactor
	hooks  []Hooks
	logger logger.Logger
}

var _ database.Transactor = (*TransactorBase)(nil)

// NewTransactorBase decorates inner with hooks. Hooks enter in the given
// order and leave in reverse order. Without hooks the decorator is transparent.
func NewTransactorBase(inner database.Transactor, hooks ...Hooks) (*TransactorBase, error) {
	if inner == nil {
		return nil, database.ErrNilTransactor
	}
	kept := make([]Hooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &TransactorBase{inner: inner, hooks: kept, logger: logger.NewNop()}, nil
}

// WithLogger sets the logger used to report hook failures.
func (t *TransactorBase) WithLogger(log logger.Logger) *TransactorBase {
	if log != nil {
		t.logger = log
	}
	return t
}

// Inner returns the wrapped transactor.
func (t *TransactorBase) Inner() database.Transactor { return t.inner }

// Transact runs fn through the hook pipeline inside the inner transactor.
func (t *TransactorBase) Transact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) error {
	return t.inner.Transact(ctx, t.wrap(ctx, fn), opts)
}

// TransactAsync is the asynchronous form of Transact.
func (t *TransactorBase) TransactAsync(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) *database.Future {
	return t.inner.TransactAsync(ctx, t.wrap(ctx, fn), opts)
}

// TryTransact runs fn like Transact and reports whether it committed.
func (t *TransactorBase) TryTransact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) bool {
	return t.inner.TryTransact(ctx, t.wrap(ctx, fn), opts)
}

func (t *TransactorBase) wrap(ctx context.Context, fn database.UnitOfWork) database.UnitOfWork {
	return func(db database.Context) error {
		return t.execute(ctx, db, fn)
	}
}

// execute runs one attempt. Every hook that entered successfully leaves
// exactly once, whatever the unit of work does, including panicking.
func (t *TransactorBase) execute(ctx context.Context, db database.Context, fn database.UnitOfWork) (err error) {
	if db == nil {
		return database.ErrNilContext
	}
	log := t.logger.WithContext(ctx)

	entered := make([]database.Context, 0, len(t.hooks))
	defer func() {
		p := recover()
		if p != nil {
			err = errors.Join(err, fmt.Errorf("unit of work panicked: %v", p))
		}
		for i := len(entered) - 1; i >= 0; i-- {
			if leaveErr := t.hooks[i].LeaveContext(ctx, entered[i], err); leaveErr != nil {
				log.Error("leave context failed", "hook", i, "error", leaveErr)
				err = errors.Join(err, fmt.Errorf("leave context: %w", leaveErr))
			}
		}
		if p != nil {
			panic(p)
		}
	}()

	current := db
	for i, h := range t.hooks {
		next, enterErr := h.EnterContext(ctx, current)
		if enterErr != nil {
			log.Error("enter context failed", "hook", i, "error", enterErr)
			return fmt.Errorf("enter context: %w", enterErr)
		}
		if next == nil {
			return fmt.Errorf("enter context: hook %d: %w", i, database.ErrNilContext)
		}
		entered = append(entered, next)
		current = next
	}

	log.Debug("executing unit of work", "hooks", len(t.hooks))
	return fn(current)
}
