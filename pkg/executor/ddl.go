package executor

import (
	"strings"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
)

// execCreateTable handles CREATE_TABLE(TABLE_NAME, COLUMN_DEF...). Each
// COLUMN_DEF packs name, type and an optional primary-key marker into its
// Value field as "name:TYPE" or "name:TYPE:PK" — COLUMN_DEF carries no
// children (per the tree grammar's arity rule), so Value is the only place
// that information can live.
func (e *Executor) execCreateTable(n *tree.Node) error {
	table := n.Children[0].Value
	schema := storage.Schema{}
	for _, def := range n.Children[1:] {
		col, err := parseColumnDef(def.Value)
		if err != nil {
			return err
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := schema.Validate(table); err != nil {
		return err
	}
	return e.store.CreateTable(table, schema)
}

// execDropTable handles DROP_TABLE(TABLE_NAME); a Value of "CASCADE"
// requests behavior=cascade, anything else (including empty) is restrict.
func (e *Executor) execDropTable(n *tree.Node) error {
	table := n.Children[0].Value
	cascade := strings.EqualFold(n.Value, "CASCADE")
	return e.store.DropTable(table, cascade)
}

func parseColumnDef(value string) (storage.Column, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return storage.Column{}, &errors.SchemaInvalidError{Reason: "malformed column definition " + value}
	}
	col := storage.Column{Name: parts[0]}
	switch strings.ToUpper(parts[1]) {
	case "INT":
		col.Type = storage.TypeInt
	case "VARCHAR":
		col.Type = storage.TypeVarchar
	case "BOOLEAN":
		col.Type = storage.TypeBoolean
	case "FLOAT":
		col.Type = storage.TypeFloat
	default:
		return storage.Column{}, &errors.SchemaInvalidError{Reason: "unknown column type " + parts[1]}
	}
	if len(parts) == 3 && strings.EqualFold(parts[2], "PK") {
		col.PrimaryKey = true
	}
	return col, nil
}
