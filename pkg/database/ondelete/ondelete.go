// Package ondelete notifies objects that are about to be deleted.
package ondelete

import (
	"context"
	"fmt"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/extensibility"
)

// DeleteAware is implemented by database objects that want to react to their
// own deletion. OnDelete runs in the deleting transaction, before the delete.
type DeleteAware interface {
	OnDelete(db database.Context) error
}

// Hooks returns transactor hooks that wrap each attempt's context with Wrap.
func Hooks() extensibility.Hooks {
	return extensibility.HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			return Wrap(db)
		},
	}
}

// Wrap decorates db so that deleting a DeleteAware object notifies it first.
// If the notification fails the delete is not performed.
func Wrap(db database.Context) (database.Context, error) {
	wrapped, err := extensibility.Intercept(db, extensibility.Interceptors{Delete: notifyThenDelete})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// NewTransactor decorates inner with on-delete notification.
func NewTransactor(inner database.Transactor) (*extensibility.TransactorBase, error) {
	return extensibility.NewTransactorBase(inner, Hooks())
}

func notifyThenDelete(self, next database.Context, obj any) error {
	if aware, ok := obj.(DeleteAware); ok {
		if err := aware.OnDelete(self); err != nil {
			return fmt.Errorf("on delete %T: %w", obj, err)
		}
	}
	return next.Delete(obj)
}
