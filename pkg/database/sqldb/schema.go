package sqldb

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/nimburion/dbext/pkg/database"
)

const catalogTable = "dbext_objects"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Schema maps struct types to the tables holding their objects.
type Schema struct {
	byType map[reflect.Type]*table
	byName map[string]*table
}

type table struct {
	typ     reflect.Type
	name    string
	columns []column
}

type column struct {
	name  string
	field string
	index []int
	typ   reflect.Type
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{
		byType: make(map[reflect.Type]*table),
		byName: make(map[string]*table),
	}
}

// Register maps the struct type of sample to tableName. Exported fields
// become columns named by their `db` tag, or by the lowercased field name
// when untagged. A `db:"-"` tag skips the field. Type names must be unique
// within a schema, ignoring case.
func (s *Schema) Register(sample any, tableName string) error {
	typ := database.EntityType(sample)
	if typ == nil || typ.Kind() != reflect.Struct {
		return fmt.Errorf("sqldb: register requires a struct, got %T", sample)
	}
	if !identifierPattern.MatchString(tableName) || strings.EqualFold(tableName, catalogTable) {
		return fmt.Errorf("sqldb: invalid table name %q", tableName)
	}
	key := strings.ToLower(typ.Name())
	if _, dup := s.byName[key]; dup {
		return fmt.Errorf("sqldb: type name %s already registered", typ.Name())
	}

	t := &table{typ: typ, name: tableName}
	for _, f := range reflect.VisibleFields(typ) {
		if !f.IsExported() || f.Anonymous || !settable(typ, f.Index) {
			continue
		}
		name := f.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if !identifierPattern.MatchString(name) || strings.EqualFold(name, "oid") {
			return fmt.Errorf("sqldb: invalid column %q for field %s.%s", name, typ.Name(), f.Name)
		}
		t.columns = append(t.columns, column{name: name, field: f.Name, index: f.Index, typ: f.Type})
	}

	s.byType[typ] = t
	s.byName[key] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (s *Schema) MustRegister(sample any, tableName string) *Schema {
	if err := s.Register(sample, tableName); err != nil {
		panic(err)
	}
	return s
}

// settable reports whether the field at index is reached through exported,
// non-pointer embedded structs only.
func settable(typ reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := typ.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.Struct {
			return false
		}
		typ = f.Type
	}
	return true
}

func (s *Schema) tableFor(typ reflect.Type) (*table, error) {
	t, ok := s.byType[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %v", database.ErrUnknownType, typ)
	}
	return t, nil
}

func (s *Schema) tableNamed(typeName string) (*table, error) {
	t, ok := s.byName[strings.ToLower(typeName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownType, typeName)
	}
	return t, nil
}

func (t *table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t *table) columnForField(field string) (column, bool) {
	for _, c := range t.columns {
		if c.field == field {
			return c, true
		}
	}
	return column{}, false
}

// values returns the column values of obj, a pointer to t's struct type.
func (t *table) values(obj any) []any {
	v := reflect.ValueOf(obj).Elem()
	out := make([]any, len(t.columns))
	for i, c := range t.columns {
		out[i] = v.FieldByIndex(c.index).Interface()
	}
	return out
}

// targets returns scan destinations for the columns of obj.
func (t *table) targets(obj any) []any {
	v := reflect.ValueOf(obj).Elem()
	out := make([]any, len(t.columns))
	for i, c := range t.columns {
		out[i] = v.FieldByIndex(c.index).Addr().Interface()
	}
	return out
}

func (t *table) createDDL(d Dialect) (string, error) {
	defs := []string{"oid BIGINT PRIMARY KEY"}
	for _, c := range t.columns {
		sqlType, ok := d.columnType(c.typ)
		if !ok {
			return "", fmt.Errorf("sqldb: %s has no %s column type for field %s (%v)", t.name, d.name, c.field, c.typ)
		}
		defs = append(defs, c.name+" "+sqlType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(defs, ", ")), nil
}
