package storage

import (
	"fmt"
	"regexp"

	"github.com/bobboyms/reldb/pkg/errors"
)

// DataType identifies the scalar kind a column holds.
type DataType int

const (
	TypeInt DataType = iota
	TypeVarchar
	TypeBoolean
	TypeFloat
)

func (d DataType) String() string {
	switch d {
	case TypeInt:
		return "INT"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeFloat:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// ForeignKey references a column in another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Column is one entry in a table's schema.
type Column struct {
	Name       string
	Type       DataType
	SizeHint   int
	PrimaryKey bool
}

// Schema is the persistent, ordered column list a table owns, plus its
// declared foreign keys. Row values outside the schema are rejected, and a
// "*" projection returns a row's columns in schema order.
type Schema struct {
	Columns     []Column
	ForeignKeys []ForeignKey
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the structural invariants a schema must hold before a
// table can be created from it: at most one primary key column, unique
// column names, and well-formed identifiers.
func (s Schema) Validate(tableName string) error {
	if !identifierPattern.MatchString(tableName) {
		return &errors.SchemaInvalidError{Reason: fmt.Sprintf("invalid table name %q", tableName)}
	}
	if len(s.Columns) == 0 {
		return &errors.SchemaInvalidError{Reason: "schema has no columns"}
	}

	seen := make(map[string]bool, len(s.Columns))
	pkCount := 0
	for _, c := range s.Columns {
		if !identifierPattern.MatchString(c.Name) {
			return &errors.SchemaInvalidError{Reason: fmt.Sprintf("invalid column name %q", c.Name)}
		}
		if seen[c.Name] {
			return &errors.SchemaInvalidError{Reason: fmt.Sprintf("duplicate column %q", c.Name)}
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return &errors.TwoPrimarykeysError{Total: pkCount}
	}

	for _, fk := range s.ForeignKeys {
		if !seen[fk.Column] {
			return &errors.SchemaInvalidError{Reason: fmt.Sprintf("foreign key references unknown column %q", fk.Column)}
		}
	}
	return nil
}

// ColumnIndex returns the position of name in Columns, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnNames returns the schema's column names in declared order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the schema's declared primary key column, if any.
func (s Schema) PrimaryKey() (Column, bool) {
	for _, c := range s.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return Column{}, false
}

// Project restricts row to the named columns, in the order requested. A
// single "*" requests every schema column in schema order.
func (s Schema) Project(r Row, columns []string) Row {
	if len(columns) == 1 && columns[0] == "*" {
		columns = s.ColumnNames()
	}
	out := make(Row, 0, len(columns))
	for _, col := range columns {
		v, _ := r.Get(col)
		out = out.With(col, v)
	}
	return out
}
