package extensibility

import (
	"reflect"

	"github.com/nimburion/dbext/pkg/database"
)

// ContextBase forwards every capability to an inner context. Decorators embed
// it and redefine only the methods they intercept.
type ContextBase struct {
	inner database.Context
}

// NewContextBase wraps inner. It fails with database.ErrNilContext when inner is nil.
func NewContextBase(inner database.Context) (*ContextBase, error) {
	if inner == nil {
		return nil, database.ErrNilContext
	}
	return &ContextBase{inner: inner}, nil
}

// Inner returns the wrapped context.
func (c *ContextBase) Inner() database.Context { return c.inner }

func (c *ContextBase) Get(oid uint64) (any, error) { return c.inner.Get(oid) }

func (c *ContextBase) Insert(t reflect.Type) (any, error) { return c.inner.Insert(t) }

func (c *ContextBase) Delete(obj any) error { return c.inner.Delete(obj) }

func (c *ContextBase) SQL(query string, args ...any) (database.Result, error) {
	return c.inner.SQL(query, args...)
}

func (c *ContextBase) GetOid(obj any) (uint64, error) { return c.inner.GetOid(obj) }

func (c *ContextBase) Equals(a, b any) bool { return c.inner.Equals(a, b) }

func (c *ContextBase) ChangeTracker() database.ChangeTracker { return c.inner.ChangeTracker() }

// Interceptors replaces individual context operations with strategy functions.
// Each function receives the decorated context as self and the wrapped context
// as next; nil members forward unchanged.
type Interceptors struct {
	Get    func(self, next database.Context, oid uint64) (any, error)
	Insert func(self, next database.Context, t reflect.Type) (any, error)
	Delete func(self, next database.Context, obj any) error
	SQL    func(self, next database.Context, query string, args []any) (database.Result, error)
}

// InterceptedContext is a ContextBase whose operations may be replaced by Interceptors.
type InterceptedContext struct {
	*ContextBase
	funcs Interceptors
}

// Intercept decorates inner with the given interceptors.
func Intercept(inner database.Context, funcs Interceptors) (*InterceptedContext, error) {
	base, err := NewContextBase(inner)
	if err != nil {
		return nil, err
	}
	return &InterceptedContext{ContextBase: base, funcs: funcs}, nil
}

func (c *InterceptedContext) Get(oid uint64) (any, error) {
	if c.funcs.Get == nil {
		return c.ContextBase.Get(oid)
	}
	return c.funcs.Get(c, c.inner, oid)
}

func (c *InterceptedContext) Insert(t reflect.Type) (any, error) {
	if c.funcs.Insert == nil {
		return c.ContextBase.Insert(t)
	}
	return c.funcs.Insert(c, c.inner, t)
}

func (c *InterceptedContext) Delete(obj any) error {
	if c.funcs.Delete == nil {
		return c.ContextBase.Delete(obj)
	}
	return c.funcs.Delete(c, c.inner, obj)
}

func (c *InterceptedContext) SQL(query string, args ...any) (database.Result, error) {
	if c.funcs.SQL == nil {
		return c.ContextBase.SQL(query, args...)
	}
	return c.funcs.SQL(c, c.inner, query, args)
}
