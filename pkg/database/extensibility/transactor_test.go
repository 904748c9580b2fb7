package extensibility

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/memdb"
)

// recordingTransactor hands every attempt the same context and records the
// boundary decisions it makes.
type recordingTransactor struct {
	db      database.Context
	events  *[]string
	retries int
}

func (r *recordingTransactor) Transact(_ context.Context, fn database.UnitOfWork, _ *database.TransactOptions) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		*r.events = append(*r.events, "begin")
		err = fn(r.db)
		if err == nil {
			*r.events = append(*r.events, "commit")
			return nil
		}
		*r.events = append(*r.events, "rollback")
		if !errors.Is(err, database.ErrRetryable) {
			return err
		}
	}
	return err
}

func (r *recordingTransactor) TransactAsync(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) *database.Future {
	return database.Go(func() error { return r.Transact(ctx, fn, opts) })
}

func (r *recordingTransactor) TryTransact(ctx context.Context, fn database.UnitOfWork, opts *database.TransactOptions) bool {
	return r.Transact(ctx, fn, opts) == nil
}

// recordingHooks logs enter and leave under a name.
func recordingHooks(name string, events *[]string) HookFuncs {
	return HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			*events = append(*events, "enter "+name)
			return db, nil
		},
		Leave: func(_ context.Context, _ database.Context, cause error) error {
			if cause != nil {
				*events = append(*events, "leave "+name+" failed")
			} else {
				*events = append(*events, "leave "+name)
			}
			return nil
		},
	}
}

func newRecording(t *testing.T, hooks ...Hooks) (*TransactorBase, *[]string) {
	t.Helper()
	events := &[]string{}
	inner := &recordingTransactor{db: fakeContext{}, events: events}
	tr, err := NewTransactorBase(inner, hooks...)
	if err != nil {
		t.Fatalf("NewTransactorBase: %v", err)
	}
	return tr, events
}

type fakeContext struct{}

func (fakeContext) Get(uint64) (any, error)                          { return nil, database.ErrNotFound }
func (fakeContext) Insert(reflect.Type) (any, error)                 { return nil, errors.New("unsupported") }
func (fakeContext) Delete(any) error                                 { return nil }
func (fakeContext) SQL(string, ...any) (database.Result, error)      { return database.SliceResult{}, nil }
func (fakeContext) GetOid(any) (uint64, error)                       { return 0, database.ErrNotDatabaseObject }
func (fakeContext) Equals(a, b any) bool                             { return a == b }
func (fakeContext) ChangeTracker() database.ChangeTracker            { return fakeTracker{} }

type fakeTracker struct{}

func (fakeTracker) Changes() []database.Change { return nil }

func TestNewTransactorBase_NilInner(t *testing.T) {
	if _, err := NewTransactorBase(nil); !errors.Is(err, database.ErrNilTransactor) {
		t.Fatalf("expected ErrNilTransactor, got %v", err)
	}
}

func TestTransact_Success(t *testing.T) {
	events := &[]string{}
	tr, _ := newRecording(t, recordingHooks("a", events))

	err := tr.Transact(context.Background(), func(database.Context) error {
		*events = append(*events, "execute")
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	want := []string{"enter a", "execute", "leave a"}
	if !reflect.DeepEqual(*events, want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
}

func TestTransact_LeaveRunsBeforeCommit(t *testing.T) {
	shared := &[]string{}
	inner := &recordingTransactor{db: fakeContext{}, events: shared}
	tr, _ := NewTransactorBase(inner, recordingHooks("a", shared))

	_ = tr.Transact(context.Background(), func(database.Context) error {
		*shared = append(*shared, "execute")
		return nil
	}, nil)

	want := []string{"begin", "enter a", "execute", "leave a", "commit"}
	if !reflect.DeepEqual(*shared, want) {
		t.Fatalf("events = %v, want %v", *shared, want)
	}
}

func TestTransact_FailureStillLeaves(t *testing.T) {
	shared := &[]string{}
	inner := &recordingTransactor{db: fakeContext{}, events: shared}
	tr, _ := NewTransactorBase(inner, recordingHooks("a", shared))
	failure := errors.New("callback failed")

	err := tr.Transact(context.Background(), func(database.Context) error {
		*shared = append(*shared, "execute")
		return failure
	}, nil)
	if !errors.Is(err, failure) {
		t.Fatalf("expected callback failure to propagate, got %v", err)
	}
	want := []string{"begin", "enter a", "execute", "leave a failed", "rollback"}
	if !reflect.DeepEqual(*shared, want) {
		t.Fatalf("events = %v, want %v", *shared, want)
	}
}

func TestTransact_PanicStillLeaves(t *testing.T) {
	events := &[]string{}
	tr, _ := newRecording(t, recordingHooks("a", events))

	defer func() {
		if p := recover(); p != "boom" {
			t.Fatalf("expected panic to be re-raised, got %v", p)
		}
		want := []string{"enter a", "leave a failed"}
		if !reflect.DeepEqual(*events, want) {
			t.Fatalf("events = %v, want %v", *events, want)
		}
	}()
	_ = tr.Transact(context.Background(), func(database.Context) error {
		panic("boom")
	}, nil)
}

func TestTransact_HooksNestInReverse(t *testing.T) {
	events := &[]string{}
	tr, _ := newRecording(t, recordingHooks("a", events), nil, recordingHooks("b", events))

	_ = tr.Transact(context.Background(), func(database.Context) error {
		*events = append(*events, "execute")
		return nil
	}, nil)
	want := []string{"enter a", "enter b", "execute", "leave b", "leave a"}
	if !reflect.DeepEqual(*events, want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
}

func TestTransact_LeaveFailureAbortsTransaction(t *testing.T) {
	shared := &[]string{}
	inner := &recordingTransactor{db: fakeContext{}, events: shared}
	hookErr := errors.New("hook says no")
	tr, _ := NewTransactorBase(inner, HookFuncs{
		Leave: func(context.Context, database.Context, error) error { return hookErr },
	})

	err := tr.Transact(context.Background(), func(database.Context) error { return nil }, nil)
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook failure, got %v", err)
	}
	if (*shared)[len(*shared)-1] != "rollback" {
		t.Fatalf("expected rollback, events = %v", *shared)
	}
}

func TestTransact_BothFailuresReported(t *testing.T) {
	failure := errors.New("callback failed")
	hookErr := errors.New("leave failed")
	tr, _ := newRecording(t, HookFuncs{
		Leave: func(context.Context, database.Context, error) error { return hookErr },
	})

	err := tr.Transact(context.Background(), func(database.Context) error { return failure }, nil)
	if !errors.Is(err, failure) || !errors.Is(err, hookErr) {
		t.Fatalf("expected both failures, got %v", err)
	}
	if strings.Index(err.Error(), "callback failed") > strings.Index(err.Error(), "leave failed") {
		t.Fatalf("expected callback failure first, got %q", err)
	}
}

func TestTransact_EnterFailure(t *testing.T) {
	events := &[]string{}
	enterErr := errors.New("cannot enter")
	failing := HookFuncs{
		Enter: func(context.Context, database.Context) (database.Context, error) { return nil, enterErr },
		Leave: func(context.Context, database.Context, error) error {
			*events = append(*events, "leave failing")
			return nil
		},
	}
	tr, _ := newRecording(t, recordingHooks("a", events), failing)

	ran := false
	err := tr.Transact(context.Background(), func(database.Context) error {
		ran = true
		return nil
	}, nil)
	if !errors.Is(err, enterErr) {
		t.Fatalf("expected enter failure, got %v", err)
	}
	if ran {
		t.Fatal("unit of work must not run when enter fails")
	}
	want := []string{"enter a", "leave a failed"}
	if !reflect.DeepEqual(*events, want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
}

func TestTransact_EnterReturningNil(t *testing.T) {
	tr, _ := newRecording(t, HookFuncs{
		Enter: func(context.Context, database.Context) (database.Context, error) { return nil, nil },
	})
	err := tr.Transact(context.Background(), func(database.Context) error { return nil }, nil)
	if !errors.Is(err, database.ErrNilContext) {
		t.Fatalf("expected ErrNilContext, got %v", err)
	}
}

func TestTransact_NilContextFromEngine(t *testing.T) {
	inner := &recordingTransactor{db: nil, events: &[]string{}}
	tr, _ := NewTransactorBase(inner)
	ran := false
	err := tr.Transact(context.Background(), func(database.Context) error {
		ran = true
		return nil
	}, nil)
	if !errors.Is(err, database.ErrNilContext) || ran {
		t.Fatalf("expected ErrNilContext without running the callback, got %v (ran=%v)", err, ran)
	}
}

func TestTransact_EnteredContextReachesCallback(t *testing.T) {
	var entered database.Context
	tr, _ := newRecording(t, HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			base, err := NewContextBase(db)
			entered = base
			return base, err
		},
		Leave: func(_ context.Context, db database.Context, _ error) error {
			if db != entered {
				t.Errorf("leave got %T, want the entered context", db)
			}
			return nil
		},
	})

	_ = tr.Transact(context.Background(), func(db database.Context) error {
		if db != entered {
			t.Errorf("callback got %T, want the entered context", db)
		}
		return nil
	}, nil)
}

func TestTransact_RetryEntersAndLeavesPerAttempt(t *testing.T) {
	shared := &[]string{}
	inner := &recordingTransactor{db: fakeContext{}, events: shared, retries: 2}
	tr, _ := NewTransactorBase(inner, recordingHooks("a", shared))

	attempts := 0
	err := tr.Transact(context.Background(), func(database.Context) error {
		attempts++
		if attempts < 2 {
			return database.ErrRetryable
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	want := []string{
		"begin", "enter a", "leave a failed", "rollback",
		"begin", "enter a", "leave a", "commit",
	}
	if !reflect.DeepEqual(*shared, want) {
		t.Fatalf("events = %v, want %v", *shared, want)
	}
}

func TestTryTransact(t *testing.T) {
	events := &[]string{}
	tr, _ := newRecording(t, recordingHooks("a", events))

	if tr.TryTransact(context.Background(), func(database.Context) error { return errors.New("no") }, nil) {
		t.Fatal("expected false for failing unit of work")
	}
	if !tr.TryTransact(context.Background(), func(database.Context) error { return nil }, nil) {
		t.Fatal("expected true for succeeding unit of work")
	}
	want := []string{"enter a", "leave a failed", "enter a", "leave a"}
	if !reflect.DeepEqual(*events, want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
}

func TestTransactAsync_WithMemdb(t *testing.T) {
	var enters, leaves int
	tr, err := NewTransactorBase(memdb.New(), HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			enters++
			return db, nil
		},
		Leave: func(context.Context, database.Context, error) error {
			leaves++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewTransactorBase: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type item struct{ N int }
	f := database.TransactValueAsync(ctx, tr, func(db database.Context) (uint64, error) {
		it, err := database.Insert[item](db)
		if err != nil {
			return 0, err
		}
		return db.GetOid(it)
	}, nil)
	oid, err := f.Wait(ctx)
	if err != nil || oid != 1 {
		t.Fatalf("expected oid 1, got %d, %v", oid, err)
	}
	if enters != 1 || leaves != 1 {
		t.Fatalf("expected one enter and one leave, got %d/%d", enters, leaves)
	}
}

func TestTransact_WithMemdbRetries(t *testing.T) {
	var enters, leaves int
	tr, _ := NewTransactorBase(memdb.New(memdb.WithRetryBackoff(time.Millisecond)), HookFuncs{
		Enter: func(_ context.Context, db database.Context) (database.Context, error) {
			enters++
			return db, nil
		},
		Leave: func(context.Context, database.Context, error) error {
			leaves++
			return nil
		},
	})

	attempts := 0
	err := tr.Transact(context.Background(), func(database.Context) error {
		attempts++
		if attempts <= 2 {
			return database.ErrRetryable
		}
		return nil
	}, &database.TransactOptions{MaxRetries: 3})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if enters != 3 || leaves != 3 {
		t.Fatalf("expected 3 enters and leaves, got %d/%d", enters, leaves)
	}
}
