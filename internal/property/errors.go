package property

import (
	"fmt"
	"strings"
)

// SchemaMismatchError reports a value whose dynamic type is incompatible
// with the shape it is decoded into.
type SchemaMismatchError struct {
	Path     string
	Expected string
	Actual   Kind
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("property %q: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// UnknownEnumValueError reports a token outside an enum's closed set.
type UnknownEnumValueError struct {
	Path    string
	Value   string
	Allowed []string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("property %q: unknown value %q, expected one of [%s]", e.Path, e.Value, strings.Join(e.Allowed, ", "))
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}
