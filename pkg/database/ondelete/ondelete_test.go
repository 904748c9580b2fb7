package ondelete

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/extensibility"
	"github.com/nimburion/dbext/pkg/database/memdb"
)

type journal struct {
	events []string
}

type person struct {
	Name string
	log  *journal
	fail error
	seen database.Context
}

func (p *person) OnDelete(db database.Context) error {
	p.seen = db
	if _, err := db.GetOid(p); err != nil {
		p.log.events = append(p.log.events, "notified after delete")
		return nil
	}
	p.log.events = append(p.log.events, "notify "+p.Name)
	return p.fail
}

type rock struct {
	Weight int
}

// spyContext records the deletes that reach the engine.
type spyContext struct {
	*extensibility.ContextBase
	log *journal
}

func (s *spyContext) Delete(obj any) error {
	s.log.events = append(s.log.events, "delete")
	return s.ContextBase.Delete(obj)
}

func spyHooks(log *journal) extensibility.Hooks {
	return extensibility.HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			base, err := extensibility.NewContextBase(db)
			if err != nil {
				return nil, err
			}
			return &spyContext{ContextBase: base, log: log}, nil
		},
	}
}

func TestDelete_NotifiesBeforeDelegating(t *testing.T) {
	log := &journal{}
	tr, err := extensibility.NewTransactorBase(memdb.New(), spyHooks(log), Hooks())
	if err != nil {
		t.Fatalf("NewTransactorBase: %v", err)
	}

	var callbackCtx database.Context
	err = tr.Transact(context.Background(), func(db database.Context) error {
		callbackCtx = db
		p, err := database.Insert[person](db)
		if err != nil {
			return err
		}
		p.Name = "Per"
		p.log = log
		if err := db.Delete(p); err != nil {
			return err
		}
		if p.seen != callbackCtx {
			t.Error("OnDelete must receive the decorated context")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	want := []string{"notify Per", "delete"}
	if !reflect.DeepEqual(log.events, want) {
		t.Fatalf("events = %v, want %v", log.events, want)
	}
}

func TestDelete_PlainObjectOnlyForwards(t *testing.T) {
	log := &journal{}
	tr, _ := extensibility.NewTransactorBase(memdb.New(), spyHooks(log), Hooks())

	err := tr.Transact(context.Background(), func(db database.Context) error {
		r, err := database.Insert[rock](db)
		if err != nil {
			return err
		}
		return db.Delete(r)
	}, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if !reflect.DeepEqual(log.events, []string{"delete"}) {
		t.Fatalf("events = %v", log.events)
	}
}

func TestDelete_NotificationFailureKeepsObject(t *testing.T) {
	log := &journal{}
	refused := errors.New("refusing to go")
	tr, _ := extensibility.NewTransactorBase(memdb.New(), spyHooks(log), Hooks())

	err := tr.Transact(context.Background(), func(db database.Context) error {
		p, _ := database.Insert[person](db)
		p.Name, p.log, p.fail = "Per", log, refused
		return db.Delete(p)
	}, nil)
	if !errors.Is(err, refused) {
		t.Fatalf("expected notification failure, got %v", err)
	}
	if !reflect.DeepEqual(log.events, []string{"notify Per"}) {
		t.Fatalf("delete must not be forwarded, events = %v", log.events)
	}
}

func TestNewTransactor(t *testing.T) {
	if _, err := NewTransactor(nil); !errors.Is(err, database.ErrNilTransactor) {
		t.Fatalf("expected ErrNilTransactor, got %v", err)
	}

	db := memdb.New()
	tr, err := NewTransactor(db)
	if err != nil {
		t.Fatalf("NewTransactor: %v", err)
	}
	log := &journal{}
	err = tr.Transact(context.Background(), func(ctx database.Context) error {
		p, _ := database.Insert[person](ctx)
		p.Name, p.log = "Per", log
		return ctx.Delete(p)
	}, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if !reflect.DeepEqual(log.events, []string{"notify Per"}) {
		t.Fatalf("events = %v", log.events)
	}
	if db.Len() != 0 {
		t.Fatalf("expected object deleted, %d remain", db.Len())
	}
}

func TestWrap_NilContext(t *testing.T) {
	if _, err := Wrap(nil); !errors.Is(err, database.ErrNilContext) {
		t.Fatalf("expected ErrNilContext, got %v", err)
	}
}
