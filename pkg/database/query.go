package database

import (
	"fmt"
	"regexp"
	"strings"
)

// objectQueryPattern accepts SELECT p FROM [Ns.]Type p [WHERE [p.]Field = ?].
var objectQueryPattern = regexp.MustCompile(`(?i)^\s*SELECT\s+(\w+)\s+FROM\s+([\w.]+)(?:\s+(\w+))?(?:\s+WHERE\s+(?:(\w+)\.)?(\w+)\s*=\s*\?)?\s*;?\s*$`)

// ObjectQuery is the parsed form of an object query such as
// "SELECT p FROM App.Person p WHERE Name = ?". TypeName has its namespace
// stripped. Field is empty when the query has no filter.
type ObjectQuery struct {
	TypeName string
	Field    string
}

// IsObjectQuery reports whether text has the shape of an object query.
func IsObjectQuery(text string) bool {
	return objectQueryPattern.MatchString(text)
}

// ParseObjectQuery parses text and checks that nargs matches its placeholders.
func ParseObjectQuery(text string, nargs int) (ObjectQuery, error) {
	m := objectQueryPattern.FindStringSubmatch(text)
	if m == nil {
		return ObjectQuery{}, fmt.Errorf("%w: %q", ErrUnsupportedQuery, text)
	}
	selected, typeName, alias, qualifier, field := m[1], m[2], m[3], m[4], m[5]

	if alias != "" && strings.EqualFold(alias, "WHERE") {
		return ObjectQuery{}, fmt.Errorf("%w: %q", ErrUnsupportedQuery, text)
	}
	if alias != "" && selected != alias {
		return ObjectQuery{}, fmt.Errorf("%w: selects %q but aliases %q", ErrUnsupportedQuery, selected, alias)
	}
	if qualifier != "" && qualifier != selected {
		return ObjectQuery{}, fmt.Errorf("%w: unknown alias %q", ErrUnsupportedQuery, qualifier)
	}

	want := 0
	if field != "" {
		want = 1
	}
	if nargs != want {
		return ObjectQuery{}, fmt.Errorf("query expects %d argument(s), got %d", want, nargs)
	}

	if i := strings.LastIndex(typeName, "."); i >= 0 {
		typeName = typeName[i+1:]
	}
	return ObjectQuery{TypeName: typeName, Field: field}, nil
}
