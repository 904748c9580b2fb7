// Package samples holds small programs showing each transactor extension at
// work. They run against any database.Transactor whose engine knows Person.
package samples

import (
	"context"
	"fmt"
	"io"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/extensibility"
	"github.com/nimburion/dbext/pkg/database/ondelete"
	"github.com/nimburion/dbext/pkg/database/precommit"
	"github.com/nimburion/dbext/pkg/observability/logger"
)

// PersonQuery finds people by name.
const PersonQuery = "SELECT p FROM App.Person p WHERE Name = ?"

// Person is the object the samples store.
type Person struct {
	Name string `db:"name"`
}

// OnDelete announces the deletion on the notice writer of the deleting
// transaction. Without one the deletion goes ahead unannounced.
func (p *Person) OnDelete(db database.Context) error {
	w := noticesOf(db)
	if w == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "%s is about to be deleted.\n", p.Name)
	return err
}

// noticeContext carries the writer deletion notices go to.
type noticeContext struct {
	*extensibility.ContextBase
	notices io.Writer
}

// withNotices decorates tr so every attempt's context carries out.
func withNotices(tr database.Transactor, out io.Writer) (*extensibility.TransactorBase, error) {
	return extensibility.NewTransactorBase(tr, extensibility.HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			base, err := extensibility.NewContextBase(db)
			if err != nil {
				return nil, err
			}
			return &noticeContext{ContextBase: base, notices: out}, nil
		},
	})
}

func noticesOf(db database.Context) io.Writer {
	for db != nil {
		if nc, ok := db.(*noticeContext); ok {
			return nc.notices
		}
		inner, ok := db.(interface{ Inner() database.Context })
		if !ok {
			return nil
		}
		db = inner.Inner()
	}
	return nil
}

var _ ondelete.DeleteAware = (*Person)(nil)

// Console finds the person called name, creating it if needed, and prints
// "<oid>: <name>". An empty name means "Noname".
func Console(ctx context.Context, tr database.Transactor, name string, out io.Writer) error {
	if name == "" {
		name = "Noname"
	}

	line, err := database.TransactValue(ctx, tr, func(db database.Context) (string, error) {
		p, err := database.QueryFirst[Person](db, PersonQuery, name)
		if err != nil {
			return "", err
		}
		if p == nil {
			if p, err = database.Insert[Person](db); err != nil {
				return "", err
			}
			p.Name = name
		}
		oid, err := db.GetOid(p)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d: %s", oid, p.Name), nil
	}, nil)
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}

	_, err = fmt.Fprintln(out, line)
	return err
}

// OnDelete creates "Per" and deletes it in one transaction through an
// on-delete transactor, so Per announces its own deletion on out.
func OnDelete(ctx context.Context, tr database.Transactor, out io.Writer) error {
	noticed, err := withNotices(tr, out)
	if err != nil {
		return err
	}
	aware, err := ondelete.NewTransactor(noticed)
	if err != nil {
		return err
	}

	err = aware.Transact(ctx, func(db database.Context) error {
		p, err := database.Insert[Person](db)
		if err != nil {
			return err
		}
		p.Name = "Per"
		return db.Delete(p)
	}, nil)
	if err != nil {
		return fmt.Errorf("ondelete: %w", err)
	}
	return nil
}

// PreCommitHooks registers an action reporting every inserted or updated
// Person, then creates "Per" and renames him in a second transaction.
func PreCommitHooks(ctx context.Context, tr database.Transactor, out io.Writer, log logger.Logger) error {
	options := precommit.NewOptions()
	err := precommit.Hook[Person](options, func(_ database.Context, change database.Change) error {
		_, err := fmt.Fprintf(out, "%s of person with id %d.\n", change.Type, change.ID)
		return err
	})
	if err != nil {
		return err
	}

	hooked, err := precommit.NewTransactor(tr, options, log)
	if err != nil {
		return err
	}

	err = hooked.Transact(ctx, func(db database.Context) error {
		p, err := database.Insert[Person](db)
		if err != nil {
			return err
		}
		p.Name = "Per"
		return nil
	}, nil)
	if err != nil {
		return fmt.Errorf("precommit: insert: %w", err)
	}

	err = hooked.Transact(ctx, func(db database.Context) error {
		p, err := database.QueryFirst[Person](db, PersonQuery, "Per")
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: Per", database.ErrNotFound)
		}
		p.Name = "Per Samuelsson"
		return nil
	}, nil)
	if err != nil {
		return fmt.Errorf("precommit: update: %w", err)
	}
	return nil
}
