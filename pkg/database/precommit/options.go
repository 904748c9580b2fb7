package precommit

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/nimburion/dbext/pkg/database"
)

// ErrDuplicateHook is returned when a type already has a registered action.
var ErrDuplicateHook = errors.New("precommit: hook already registered for type")

// Action runs inside the transaction that produced change.
type Action func(db database.Context, change database.Change) error

// Options is the hook registration table. It is filled at configuration time
// and only read while transactions run.
type Options struct {
	actions map[reflect.Type]Action
}

// NewOptions returns an empty registration table.
func NewOptions() *Options {
	return &Options{actions: make(map[reflect.Type]Action)}
}

// Hook registers action for inserts and updates of objects of type T.
func Hook[T any](o *Options, action Action) error {
	return o.HookType(reflect.TypeFor[T](), action)
}

// HookType registers action for the struct type t. Pointer types are
// dereferenced so *Person and Person share a key.
func (o *Options) HookType(t reflect.Type, action Action) error {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("precommit: hook type must be a struct, got %v", t)
	}
	if action == nil {
		return fmt.Errorf("precommit: nil action for %s", t)
	}
	if _, exists := o.actions[t]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHook, t)
	}
	o.actions[t] = action
	return nil
}

// Lookup returns the action registered for exactly t.
func (o *Options) Lookup(t reflect.Type) (Action, bool) {
	if o == nil {
		return nil, false
	}
	a, ok := o.actions[t]
	return a, ok
}

// Len returns the number of registered types.
func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.actions)
}

func entityName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
