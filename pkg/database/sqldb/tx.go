package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/Masterminds/squirrel"

	"github.com/nimburion/dbext/pkg/database"
)

// tx is the database.Context of one attempt. Statements run on the
// transaction bound to ctx.
type tx struct {
	db       *DB
	ctx      context.Context
	readOnly bool
	done     bool
	objects  map[uint64]any
	tables   map[uint64]*table
	// snapshots hold column values as loaded, written the values last stored.
	snapshots map[uint64][]any
	written   map[uint64][]any
	inserted  map[uint64]struct{}
	deleted   map[uint64]struct{}
	oids      map[any]uint64
}

var _ database.Context = (*tx)(nil)

func newTx(db *DB, ctx context.Context, readOnly bool) *tx {
	return &tx{
		db:        db,
		ctx:       ctx,
		readOnly:  readOnly,
		objects:   make(map[uint64]any),
		tables:    make(map[uint64]*table),
		snapshots: make(map[uint64][]any),
		written:   make(map[uint64][]any),
		inserted:  make(map[uint64]struct{}),
		deleted:   make(map[uint64]struct{}),
		oids:      make(map[any]uint64),
	}
}

func (t *tx) finish() { t.done = true }

func (t *tx) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(t.db.dialect.placeholder)
}

func (t *tx) Get(oid uint64) (any, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	if _, gone := t.deleted[oid]; gone {
		return nil, fmt.Errorf("%w: %d", database.ErrNotFound, oid)
	}
	if obj, ok := t.objects[oid]; ok {
		return obj, nil
	}

	query, args, err := t.builder().Select("type_name").From(catalogTable).Where(squirrel.Eq{"oid": oid}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building catalog query: %w", err)
	}
	var typeName string
	if err := t.db.store.QueryRowContext(t.ctx, query, args...).Scan(&typeName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", database.ErrNotFound, oid)
		}
		return nil, fmt.Errorf("sqldb: resolve %d: %w", oid, err)
	}
	tbl, err := t.db.schema.tableNamed(typeName)
	if err != nil {
		return nil, err
	}

	query, args, err = t.builder().Select(tbl.columnNames()...).From(tbl.name).Where(squirrel.Eq{"oid": oid}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	obj := reflect.New(tbl.typ).Interface()
	if err := t.db.store.QueryRowContext(t.ctx, query, args...).Scan(tbl.targets(obj)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", database.ErrNotFound, oid)
		}
		return nil, fmt.Errorf("sqldb: load %d from %s: %w", oid, tbl.name, err)
	}

	t.track(oid, obj, tbl)
	t.snapshots[oid] = tbl.values(obj)
	return obj, nil
}

func (t *tx) Insert(typ reflect.Type) (any, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	tbl, err := t.db.schema.tableFor(typ)
	if err != nil {
		return nil, err
	}
	if t.readOnly {
		return nil, database.ErrReadOnly
	}

	oid, err := t.allocate(tbl.typ.Name())
	if err != nil {
		return nil, err
	}
	obj := reflect.New(tbl.typ).Interface()
	query, args, err := t.builder().Insert(tbl.name).
		Columns(append([]string{"oid"}, tbl.columnNames()...)...).
		Values(append([]any{oid}, tbl.values(obj)...)...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := t.db.store.ExecContext(t.ctx, query, args...); err != nil {
		return nil, fmt.Errorf("sqldb: insert into %s: %w", tbl.name, err)
	}

	t.track(oid, obj, tbl)
	t.inserted[oid] = struct{}{}
	return obj, nil
}

// allocate adds a catalog row and returns its oid.
func (t *tx) allocate(typeName string) (uint64, error) {
	b := t.builder().Insert(catalogTable).Columns("type_name").Values(typeName)
	if t.db.dialect.returning {
		query, args, err := b.Suffix("RETURNING oid").ToSql()
		if err != nil {
			return 0, fmt.Errorf("building catalog insert: %w", err)
		}
		var oid uint64
		if err := t.db.store.QueryRowContext(t.ctx, query, args...).Scan(&oid); err != nil {
			return 0, fmt.Errorf("sqldb: allocate oid: %w", err)
		}
		return oid, nil
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building catalog insert: %w", err)
	}
	res, err := t.db.store.ExecContext(t.ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqldb: allocate oid: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqldb: allocate oid: %w", err)
	}
	return uint64(id), nil
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
	tbl := t.tables[oid]

	for _, name := range []string{tbl.name, catalogTable} {
		query, args, err := t.builder().Delete(name).Where(squirrel.Eq{"oid": oid}).ToSql()
		if err != nil {
			return fmt.Errorf("building delete query: %w", err)
		}
		if _, err := t.db.store.ExecContext(t.ctx, query, args...); err != nil {
			return fmt.Errorf("sqldb: delete %d from %s: %w", oid, name, err)
		}
	}

	delete(t.objects, oid)
	delete(t.tables, oid)
	delete(t.snapshots, oid)
	delete(t.written, oid)
	delete(t.oids, obj)
	if _, fresh := t.inserted[oid]; fresh {
		delete(t.inserted, oid)
		return nil
	}
	t.deleted[oid] = struct{}{}
	return nil
}

// SQL runs an object query, or raw SQL whose first column is the oid of each
// object to return.
func (t *tx) SQL(query string, args ...any) (database.Result, error) {
	if t.done {
		return nil, database.ErrTransactionDone
	}
	if err := t.flush(); err != nil {
		return nil, err
	}

	if database.IsObjectQuery(query) {
		var err error
		query, args, err = t.translate(query, args)
		if err != nil {
			return nil, err
		}
	}

	oids, err := t.selectOids(query, args)
	if err != nil {
		return nil, err
	}
	out := make(database.SliceResult, 0, len(oids))
	for _, oid := range oids {
		obj, err := t.Get(oid)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (t *tx) translate(text string, args []any) (string, []any, error) {
	q, err := database.ParseObjectQuery(text, len(args))
	if err != nil {
		return "", nil, err
	}
	tbl, err := t.db.schema.tableNamed(q.TypeName)
	if err != nil {
		return "", nil, err
	}
	b := t.builder().Select("oid").From(tbl.name).OrderBy("oid")
	if q.Field != "" {
		col, ok := tbl.columnForField(q.Field)
		if !ok {
			return "", nil, fmt.Errorf("sqldb: type %s has no column for field %s", tbl.typ.Name(), q.Field)
		}
		b = b.Where(squirrel.Eq{col.name: args[0]})
	}
	query, qargs, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("building object query: %w", err)
	}
	return query, qargs, nil
}

// selectOids reads the first column of every row before any object is loaded,
// since a transaction runs one statement at a time.
func (t *tx) selectOids(query string, args []any) ([]uint64, error) {
	rows, err := t.db.store.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqldb: query columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: query returns no columns", database.ErrUnsupportedQuery)
	}

	var oids []uint64
	dest := make([]any, len(cols))
	for i := 1; i < len(dest); i++ {
		dest[i] = new(sql.RawBytes)
	}
	for rows.Next() {
		var oid uint64
		dest[0] = &oid
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqldb: scan oid: %w", err)
		}
		oids = append(oids, oid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: read rows: %w", err)
	}
	return oids, nil
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

// Changes reports inserts and deletes as issued, and an update for every
// loaded object whose stored fields differ from when it was loaded.
func (t *tx) Changes() []database.Change {
	changes := make([]database.Change, 0, len(t.inserted)+len(t.deleted))
	for oid := range t.inserted {
		changes = append(changes, database.Change{Type: database.ChangeInsert, ID: oid})
	}
	for oid := range t.deleted {
		changes = append(changes, database.Change{Type: database.ChangeDelete, ID: oid})
	}
	for oid, snap := range t.snapshots {
		if !reflect.DeepEqual(t.current(oid), snap) {
			changes = append(changes, database.Change{Type: database.ChangeUpdate, ID: oid})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

// flush writes back every object whose fields changed since last stored.
func (t *tx) flush() error {
	oids := make([]uint64, 0, len(t.objects))
	for oid := range t.objects {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })

	for _, oid := range oids {
		current := t.current(oid)
		if reflect.DeepEqual(current, t.written[oid]) {
			continue
		}
		if t.readOnly {
			return database.ErrReadOnly
		}
		tbl := t.tables[oid]
		b := t.builder().Update(tbl.name).Where(squirrel.Eq{"oid": oid})
		for i, v := range current {
			b = b.Set(tbl.columns[i].name, v)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("building update query: %w", err)
		}
		if _, err := t.db.store.ExecContext(t.ctx, query, args...); err != nil {
			return fmt.Errorf("sqldb: update %d in %s: %w", oid, tbl.name, err)
		}
		t.written[oid] = current
	}
	return nil
}

func (t *tx) track(oid uint64, obj any, tbl *table) {
	t.objects[oid] = obj
	t.tables[oid] = tbl
	t.written[oid] = tbl.values(obj)
	t.oids[obj] = oid
}

func (t *tx) current(oid uint64) []any {
	return t.tables[oid].values(t.objects[oid])
}
