package extensibility

import (
	"context"

	"github.com/nimburion/dbext/pkg/database"
)

// Hooks is the extension point of TransactorBase.
type Hooks interface {
	// EnterContext runs after the engine opened the transaction and before the
	// unit of work. The returned context is handed to the unit of work.
	EnterContext(ctx context.Context, db database.Context) (database.Context, error)

	// LeaveContext runs after the unit of work returned, while the transaction
	// is still open. It receives the context EnterContext returned and the
	// failure of the attempt so far, if any. A non-nil error aborts the transaction.
	LeaveContext(ctx context.Context, db database.Context, cause error) error
}

// NopHooks passes the raw context through and does nothing on leave.
type NopHooks struct{}

func (NopHooks) EnterContext(_ context.Context, db database.Context) (database.Context, error) {
	return db, nil
}

func (NopHooks) LeaveContext(context.Context, database.Context, error) error { return nil }

// HookFuncs adapts plain functions to Hooks. Nil members behave like NopHooks.
type HookFuncs struct {
	Enter func(ctx context.Context, db database.Context) (database.Context, error)
	Leave func(ctx context.Context, db database.Context, cause error) error
}

func (h HookFuncs) EnterContext(ctx context.Context, db database.Context) (database.Context, error) {
	if h.Enter == nil {
		return db, nil
	}
	return h.Enter(ctx, db)
}

func (h HookFuncs) LeaveContext(ctx context.Context, db database.Context, cause error) error {
	if h.Leave == nil {
		return nil
	}
	return h.Leave(ctx, db, cause)
}
