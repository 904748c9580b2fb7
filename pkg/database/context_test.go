package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/database/memdb"
)

type book struct {
	Title string
}

type shelf struct {
	Label string
}

func TestChangeType_String(t *testing.T) {
	tests := map[database.ChangeType]string{
		database.ChangeInsert:  "Insert",
		database.ChangeUpdate:  "Update",
		database.ChangeDelete:  "Delete",
		database.ChangeType(9): "ChangeType(9)",
	}
	for ct, want := range tests {
		if got := ct.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestGenericHelpers(t *testing.T) {
	db := memdb.New(memdb.WithTypes(book{}))
	ctx := context.Background()

	var oid uint64
	err := db.Transact(ctx, func(tx database.Context) error {
		b, err := database.Insert[book](tx)
		if err != nil {
			return err
		}
		b.Title = "Dune"
		if oid, err = tx.GetOid(b); err != nil {
			return err
		}
		want := []database.Change{{Type: database.ChangeInsert, ID: oid}}
		if got := tx.ChangeTracker().Changes(); len(got) != 1 || got[0] != want[0] {
			t.Fatalf("changes = %v, want %v", got, want)
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = db.Transact(ctx, func(tx database.Context) error {
		b, err := database.Get[book](tx, oid)
		if err != nil {
			return err
		}
		if b.Title != "Dune" {
			t.Fatalf("unexpected title %q", b.Title)
		}
		all, err := database.Query[book](tx, "SELECT b FROM book b")
		if err != nil || len(all) != 1 {
			t.Fatalf("Query() = %v, %v", all, err)
		}
		missing, err := database.QueryFirst[book](tx, "SELECT b FROM book b WHERE Title = ?", "Emma")
		if err != nil || missing != nil {
			t.Fatalf("QueryFirst() = %v, %v", missing, err)
		}
		if _, err := database.Get[shelf](tx, oid); !errors.Is(err, database.ErrTypeMismatch) {
			t.Fatalf("expected ErrTypeMismatch, got %v", err)
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}
