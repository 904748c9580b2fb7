package database

import (
	"fmt"
	"reflect"
)

// ChangeType identifies the kind of mutation a Change describes.
type ChangeType int

// Change kinds
const (
	ChangeInsert ChangeType = iota + 1
	ChangeUpdate
	ChangeDelete
)

// String returns the change kind name, e.g. "Insert".
func (t ChangeType) String() string {
	switch t {
	case ChangeInsert:
		return "Insert"
	case ChangeUpdate:
		return "Update"
	case ChangeDelete:
		return "Delete"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// Change describes one mutation made in the current transaction.
type Change struct {
	Type ChangeType
	ID   uint64
}

// ChangeTracker exposes the changes made so far in a transaction.
type ChangeTracker interface {
	// Changes returns the changes ordered by object identifier.
	Changes() []Change
}

// Result is the sequence produced by a SQL query.
type Result interface {
	All() ([]any, error)
	// First returns the first object, or nil when the result is empty.
	First() (any, error)
}

// Context is the capability surface of an open transaction. A Context is only
// valid inside the unit of work it was handed to.
type Context interface {
	Get(oid uint64) (any, error)
	// Insert creates a new object of the given struct type and returns a pointer to it.
	Insert(t reflect.Type) (any, error)
	Delete(obj any) error
	SQL(query string, args ...any) (Result, error)
	GetOid(obj any) (uint64, error)
	Equals(a, b any) bool
	ChangeTracker() ChangeTracker
}

// SliceResult is a Result backed by an already materialized slice.
type SliceResult []any

// All returns every object in the result.
func (r SliceResult) All() ([]any, error) { return r, nil }

// First returns the first object, or nil if empty.
func (r SliceResult) First() (any, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return r[0], nil
}

// EntityType returns the struct type behind a database object pointer.
func EntityType(obj any) reflect.Type {
	t := reflect.TypeOf(obj)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Insert creates a new object of type T.
func Insert[T any](db Context) (*T, error) {
	obj, err := db.Insert(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return cast[T](obj)
}

// Get loads the object with the given identifier as a *T.
func Get[T any](db Context, oid uint64) (*T, error) {
	obj, err := db.Get(oid)
	if err != nil {
		return nil, err
	}
	return cast[T](obj)
}

// Query runs a SQL query and returns every row as a *T.
func Query[T any](db Context, query string, args ...any) ([]*T, error) {
	res, err := db.SQL(query, args...)
	if err != nil {
		return nil, err
	}
	all, err := res.All()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(all))
	for _, obj := range all {
		v, err := cast[T](obj)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryFirst runs a SQL query and returns the first row, or nil when there is none.
func QueryFirst[T any](db Context, query string, args ...any) (*T, error) {
	res, err := db.SQL(query, args...)
	if err != nil {
		return nil, err
	}
	obj, err := res.First()
	if err != nil || obj == nil {
		return nil, err
	}
	return cast[T](obj)
}

func cast[T any](obj any) (*T, error) {
	v, ok := obj.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: got %T, want *%s", ErrTypeMismatch, obj, reflect.TypeFor[T]())
	}
	return v, nil
}
