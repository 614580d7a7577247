package executor

import (
	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
)

// execInsert handles INSERT_QUERY(TABLE_NAME, [LIST of COLUMN_NAME], LIST of
// values...). The column-name LIST is optional; when absent, values are
// assigned in the table's declared schema order (requiring a Schema lookup
// this teaching system's Store exposes for exactly that reason). Multiple
// trailing value LISTs insert multiple rows in one statement.
func (e *Executor) execInsert(n *tree.Node) (int, error) {
	table := n.Children[0].Value
	rest := n.Children[1:]

	var columns []string
	if len(rest) > 0 && isColumnNameList(rest[0]) {
		columns = columnNamesOf(rest[0])
		rest = rest[1:]
	}

	schema, err := e.store.Schema(table)
	if err != nil {
		return 0, err
	}
	if columns == nil {
		columns = schema.ColumnNames()
	}

	affected := 0
	for _, valueList := range rest {
		if valueList.Type != tree.LIST {
			return affected, &errors.PredicateTypeError{Column: table, Reason: "INSERT expects a value LIST per row"}
		}
		if len(valueList.Children) != len(columns) {
			return affected, &errors.SchemaInvalidError{Reason: "value count does not match column count"}
		}

		var row storage.Row
		for i, valNode := range valueList.Children {
			v, err := e.evalScalar(nil, valNode)
			if err != nil {
				return affected, err
			}
			row = row.With(columns[i], v)
		}

		rowKey := rowKeyOf(schema, row)
		if err := e.validateRow(table, rowKey, lock.ModeWrite); err != nil {
			return affected, err
		}
		e.buf.append(BufferedOperation{Kind: OpInsert, Table: table, New: row})
		affected++
	}
	return affected, nil
}

// execUpdate handles UPDATE_QUERY(TABLE_NAME, ASSIGNMENT..., [predicate]):
// every child after the table that isn't an ASSIGNMENT is the WHERE clause.
func (e *Executor) execUpdate(n *tree.Node) (int, error) {
	table := n.Children[0].Value
	var assigns []*tree.Node
	var cond *tree.Node
	for _, c := range n.Children[1:] {
		if c.Type == tree.ASSIGNMENT {
			assigns = append(assigns, c)
		} else {
			cond = c
		}
	}

	schema, err := e.store.Schema(table)
	if err != nil {
		return 0, err
	}
	rows, err := e.store.ReadBlock(table, []string{"*"}, nil)
	if err != nil {
		return 0, err
	}
	// Every row UPDATE scans is a read access, whether or not it ends up
	// matching the WHERE clause, so it goes through CC before anything
	// else happens to it.
	for _, row := range rows {
		if err := e.validateRow(table, rowKeyOf(schema, row), lock.ModeRead); err != nil {
			return 0, err
		}
	}
	rows = e.buf.overlay(table, rows)

	affected := 0
	for _, row := range rows {
		if cond != nil {
			ok, err := e.evalPredicate(row, cond)
			if err != nil {
				return affected, err
			}
			if !ok {
				continue
			}
		}

		rowKey := rowKeyOf(schema, row)
		if err := e.validateRow(table, rowKey, lock.ModeWrite); err != nil {
			return affected, err
		}

		newRow := row
		for _, a := range assigns {
			col := a.Children[0].Value
			v, err := e.evalScalar(row, a.Children[1])
			if err != nil {
				return affected, err
			}
			newRow = newRow.With(col, v)
		}

		e.buf.append(BufferedOperation{Kind: OpUpdate, Table: table, Old: row, New: newRow})
		affected++
	}
	return affected, nil
}

// execDelete handles DELETE_QUERY(TABLE_NAME, [predicate]).
func (e *Executor) execDelete(n *tree.Node) (int, error) {
	table := n.Children[0].Value
	var cond *tree.Node
	if len(n.Children) > 1 {
		cond = n.Children[1]
	}

	schema, err := e.store.Schema(table)
	if err != nil {
		return 0, err
	}
	rows, err := e.store.ReadBlock(table, []string{"*"}, nil)
	if err != nil {
		return 0, err
	}
	// Every row DELETE scans is a read access, whether or not it ends up
	// matching the WHERE clause, so it goes through CC before anything
	// else happens to it.
	for _, row := range rows {
		if err := e.validateRow(table, rowKeyOf(schema, row), lock.ModeRead); err != nil {
			return 0, err
		}
	}
	rows = e.buf.overlay(table, rows)

	affected := 0
	for _, row := range rows {
		if cond != nil {
			ok, err := e.evalPredicate(row, cond)
			if err != nil {
				return affected, err
			}
			if !ok {
				continue
			}
		}

		rowKey := rowKeyOf(schema, row)
		if err := e.validateRow(table, rowKey, lock.ModeWrite); err != nil {
			return affected, err
		}

		e.buf.append(BufferedOperation{Kind: OpDelete, Table: table, Old: row})
		affected++
	}
	return affected, nil
}

func isColumnNameList(n *tree.Node) bool {
	if n.Type != tree.LIST || len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children {
		if c.Type != tree.COLUMN_NAME {
			return false
		}
	}
	return true
}

func columnNamesOf(n *tree.Node) []string {
	names := make([]string, len(n.Children))
	for i, c := range n.Children {
		names[i] = c.Value
	}
	return names
}
