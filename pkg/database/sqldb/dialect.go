package sqldb

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect captures what differs between the supported SQL servers.
type Dialect struct {
	name        string
	placeholder squirrel.PlaceholderFormat
	// returning allocates oids with INSERT ... RETURNING instead of LastInsertId.
	returning  bool
	catalogDDL string
	columnType func(reflect.Type) (string, bool)
	retryable  func(error) bool
}

// Name returns the database type the dialect targets.
func (d Dialect) Name() string { return d.name }

var timeType = reflect.TypeOf(time.Time{})

// Postgres targets PostgreSQL through lib/pq.
var Postgres = Dialect{
	name:        "postgres",
	placeholder: squirrel.Dollar,
	returning:   true,
	catalogDDL:  "CREATE TABLE IF NOT EXISTS " + catalogTable + " (oid BIGSERIAL PRIMARY KEY, type_name TEXT NOT NULL)",
	columnType: func(t reflect.Type) (string, bool) {
		if t == timeType {
			return "TIMESTAMPTZ", true
		}
		switch t.Kind() {
		case reflect.String:
			return "TEXT", true
		case reflect.Bool:
			return "BOOLEAN", true
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return "BIGINT", true
		case reflect.Float32, reflect.Float64:
			return "DOUBLE PRECISION", true
		case reflect.Slice:
			if t.Elem().Kind() == reflect.Uint8 {
				return "BYTEA", true
			}
		}
		return "", false
	},
	retryable: func(err error) bool {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) {
			return false
		}
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	},
}

// MySQL targets MySQL through go-sql-driver/mysql.
var MySQL = Dialect{
	name:        "mysql",
	placeholder: squirrel.Question,
	catalogDDL:  "CREATE TABLE IF NOT EXISTS " + catalogTable + " (oid BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY, type_name VARCHAR(255) NOT NULL)",
	columnType: func(t reflect.Type) (string, bool) {
		if t == timeType {
			return "DATETIME(6)", true
		}
		switch t.Kind() {
		case reflect.String:
			return "TEXT", true
		case reflect.Bool:
			return "BOOLEAN", true
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return "BIGINT", true
		case reflect.Float32, reflect.Float64:
			return "DOUBLE", true
		case reflect.Slice:
			if t.Elem().Kind() == reflect.Uint8 {
				return "BLOB", true
			}
		}
		return "", false
	},
	retryable: func(err error) bool {
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) {
			return false
		}
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	},
}

// DialectFor returns the dialect for a configured database type.
func DialectFor(dbType string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case Postgres.name:
		return Postgres, nil
	case MySQL.name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("sqldb: unsupported dialect %q", dbType)
	}
}
