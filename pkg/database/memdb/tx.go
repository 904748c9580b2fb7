package memdb

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/nimburion/dbext/pkg/database"
)

// tx is the database.Context of one attempt. It is only used while the DB
// lock is held.
type tx struct {
	db        *DB
	readOnly  bool
	done      bool
	working   map[uint64]any
	snapshots map[uint64]any
	inserted  map[uint64]struct{}
	deleted   map[uint64]struct{}
	oids      map[any]uint64
}

var _ database.Context = (*tx)(nil)

func newTx(db *DB, readOnly bool) *tx {
	return &tx{
		db:        db,
		readOnly:  readOnly,
		working:   make(map[uint64]any),
		snapshots: make(map[uint64]any),
		inserted:  make(map[uint64]struct{}),
		deleted:   make(map[uint64]struct{}),
		oids:      make(map[any]uint64),
	}
}

func (t *tx) finish() { t.done = true }

func (t *tx) Get(oid uint64) (any, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	if _, gone := t.deleted[oid]; gone {
		return nil, fmt.Errorf("%w: %d", database.ErrNotFound, oid)
	}
	if obj, ok := t.working[oid]; ok {
		return obj, nil
	}
	committed, ok := t.db.objects[oid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", database.ErrNotFound, oid)
	}
	obj := clone(committed)
	t.working[oid] = obj
	t.snapshots[oid] = reflect.ValueOf(committed).Elem().Interface()
	t.oids[obj] = oid
	return obj, nil
}

func (t *tx) Insert(typ reflect.Type) (any, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("memdb: insert requires a struct type, got %v", typ)
	}
	if t.readOnly {
		return nil, database.ErrReadOnly
	}
	t.db.register(typ)
	t.db.lastOid++
	oid := t.db.lastOid
	obj := reflect.New(typ).Interface()
	t.working[oid] = obj
	t.inserted[oid] = struct{}{}
	t.oids[obj] = oid
	return obj, nil
}

func (t *tx) Delete(obj any) error {
	if t.done {
		return database.ErrTransactionDone
	}
	oid, err := t.GetOid(obj)
	if err != nil {
		return err
	}
	if t.readOnly {
		return database.ErrReadOnly
	}
	delete(t.working, oid)
	delete(t.snapshots, oid)
	delete(t.oids, obj)
	if _, fresh := t.inserted[oid]; fresh {
		delete(t.inserted, oid)
		return nil
	}
	t.deleted[oid] = struct{}{}
	return nil
}

func (t *tx) SQL(query string, args ...any) (database.Result, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	q, err := database.ParseObjectQuery(query, len(args))
	if err != nil {
		return nil, err
	}
	typ, ok := t.db.types[strings.ToLower(q.TypeName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownType, q.TypeName)
	}
	if q.Field != "" {
		if _, ok := typ.FieldByName(q.Field); !ok {
			return nil, fmt.Errorf("memdb: type %s has no field %s", typ.Name(), q.Field)
		}
	}

	var out database.SliceResult
	for _, oid := range t.visibleOids() {
		obj, err := t.Get(oid)
		if err != nil {
			return nil, err
		}
		if database.EntityType(obj) != typ {
			continue
		}
		if q.Field != "" && !fieldEquals(reflect.ValueOf(obj).Elem().FieldByName(q.Field), args[0]) {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

func (t *tx) GetOid(obj any) (uint64, error) {
	if obj == nil || reflect.TypeOf(obj).Kind() != reflect.Pointer {
		return 0, fmt.Errorf("%w: %T", database.ErrNotDatabaseObject, obj)
	}
	oid, ok := t.oids[obj]
	if !ok {
		return 0, fmt.Errorf("%w: %T", database.ErrNotDatabaseObject, obj)
	}
	return oid, nil
}

func (t *tx) Equals(a, b any) bool {
	oa, errA := t.GetOid(a)
	ob, errB := t.GetOid(b)
	return errA == nil && errB == nil && oa == ob
}

func (t *tx) ChangeTracker() database.ChangeTracker { return t }

// Changes diffs loaded objects against their snapshots. The comparison is
// shallow: mutating the elements of a slice field is not seen as an update.
func (t *tx) Changes() []database.Change {
	changes := make([]database.Change, 0, len(t.inserted)+len(t.deleted))
	for oid := range t.inserted {
		changes = append(changes, database.Change{Type: database.ChangeInsert, ID: oid})
	}
	for oid := range t.deleted {
		changes = append(changes, database.Change{Type: database.ChangeDelete, ID: oid})
	}
	for oid, snap := range t.snapshots {
		current := reflect.ValueOf(t.working[oid]).Elem().Interface()
		if !reflect.DeepEqual(current, snap) {
			changes = append(changes, database.Change{Type: database.ChangeUpdate, ID: oid})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

func (t *tx) commit() error {
	changes := t.Changes()
	if t.readOnly && len(changes) > 0 {
		return database.ErrReadOnly
	}
	for _, c := range changes {
		switch c.Type {
		case database.ChangeInsert, database.ChangeUpdate:
			t.db.objects[c.ID] = clone(t.working[c.ID])
		case database.ChangeDelete:
			delete(t.db.objects, c.ID)
		}
	}
	t.db.logger.Debug("transaction committed", "changes", len(changes))
	return nil
}

func (t *tx) visibleOids() []uint64 {
	oids := make([]uint64, 0, len(t.db.objects)+len(t.inserted))
	for oid := range t.db.objects {
		if _, gone := t.deleted[oid]; !gone {
			oids = append(oids, oid)
		}
	}
	for oid := range t.inserted {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })
	return oids
}

func fieldEquals(field reflect.Value, arg any) bool {
	av := reflect.ValueOf(arg)
	if !av.IsValid() {
		return field.IsZero()
	}
	if av.Type() != field.Type() {
		converted, ok := convertExact(av, field.Type())
		if !ok {
			return false
		}
		av = converted
	}
	return reflect.DeepEqual(field.Interface(), av.Interface())
}

// convertExact converts v to typ only between numeric kinds, or between types
// of the same kind, and only when converting back yields v again.
func convertExact(v reflect.Value, typ reflect.Type) (reflect.Value, bool) {
	from := v.Type()
	if !from.ConvertibleTo(typ) || !typ.ConvertibleTo(from) {
		return reflect.Value{}, false
	}
	switch {
	case isNumeric(from.Kind()) && isNumeric(typ.Kind()):
		if isUnsigned(typ.Kind()) && isNegative(v) {
			return reflect.Value{}, false
		}
	case from.Kind() != typ.Kind():
		return reflect.Value{}, false
	}
	converted := v.Convert(typ)
	if isUnsigned(from.Kind()) && !isUnsigned(typ.Kind()) && isNegative(converted) {
		return reflect.Value{}, false
	}
	if !reflect.DeepEqual(converted.Convert(from).Interface(), v.Interface()) {
		return reflect.Value{}, false
	}
	return converted, true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return isUnsigned(k)
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNegative(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() < 0
	case reflect.Float32, reflect.Float64:
		return v.Float() < 0
	}
	return false
}
