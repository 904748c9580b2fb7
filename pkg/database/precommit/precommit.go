// Package precommit runs registered actions for every object inserted or
// updated in a transaction, right before the transaction commits.
package precommit

import (
	"context"
	"fmt"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/extensibility"
	"github.com/nimburion/dbext/pkg/observability/logger"
	"github.com/nimburion/dbext/pkg/observability/metrics"
)

// Context is the context handed to units of work run through the pre-commit
// transactor.
type Context struct {
	*extensibility.ContextBase
	options *Options
}

// ExecutePreCommitHooks dispatches every non-delete change to the action
// registered for the changed object's type. Lookup is by exact struct type.
func (c *Context) ExecutePreCommitHooks() error {
	for _, change := range c.ChangeTracker().Changes() {
		if change.Type == database.ChangeDelete {
			continue
		}
		obj, err := c.Get(change.ID)
		if err != nil {
			return fmt.Errorf("resolve %s of %d: %w", change.Type, change.ID, err)
		}
		t := database.EntityType(obj)
		action, ok := c.options.Lookup(t)
		if !ok {
			continue
		}
		if err := action(c, change); err != nil {
			return fmt.Errorf("pre-commit hook for %s: %w", entityName(t), err)
		}
		metrics.RecordPreCommitAction(entityName(t), change.Type.String())
	}
	return nil
}

type hooks struct {
	options *Options
	logger  logger.Logger
}

// NewHooks returns transactor hooks dispatching to the actions in options.
// A nil logger discards output.
func NewHooks(options *Options, log logger.Logger) extensibility.Hooks {
	if options == nil {
		options = NewOptions()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &hooks{options: options, logger: log}
}

func (h *hooks) EnterContext(_ context.Context, db database.Context) (database.Context, error) {
	base, err := extensibility.NewContextBase(db)
	if err != nil {
		return nil, err
	}
	return &Context{ContextBase: base, options: h.options}, nil
}

// LeaveContext skips dispatch when the attempt already failed: nothing will commit.
func (h *hooks) LeaveContext(ctx context.Context, db database.Context, cause error) error {
	if cause != nil {
		h.logger.WithContext(ctx).Debug("skipping pre-commit hooks for failed attempt", "cause", cause)
		return nil
	}
	pc, ok := db.(*Context)
	if !ok {
		return fmt.Errorf("precommit: unexpected context %T", db)
	}
	return pc.ExecutePreCommitHooks()
}

// NewTransactor decorates inner with pre-commit hook dispatch.
func NewTransactor(inner database.Transactor, options *Options, log logger.Logger) (*extensibility.TransactorBase, error) {
	tr, err := extensibility.NewTransactorBase(inner, NewHooks(options, log))
	if err != nil {
		return nil, err
	}
	return tr.WithLogger(log), nil
}
