package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
)

func TestExecInsert_WithExplicitColumnList(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	e := New(store, newFakeCC(), 1)

	insert := tree.New(tree.INSERT_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.LIST, "",
			tree.New(tree.COLUMN_NAME, "id"), tree.New(tree.COLUMN_NAME, "name"), tree.New(tree.COLUMN_NAME, "balance")),
		tree.New(tree.LIST, "",
			tree.New(tree.LITERAL_NUMBER, "1"), tree.New(tree.LITERAL_STRING, "alice"), tree.New(tree.LITERAL_NUMBER, "100")),
	)

	res, err := e.Run(insert)
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)
	require.Len(t, e.Buffer().Ops(), 1)
	require.Equal(t, OpInsert, e.Buffer().Ops()[0].Kind)
}

func TestExecInsert_FallsBackToSchemaColumnOrder(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	e := New(store, newFakeCC(), 1)

	insert := tree.New(tree.INSERT_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.LIST, "",
			tree.New(tree.LITERAL_NUMBER, "1"), tree.New(tree.LITERAL_STRING, "alice"), tree.New(tree.LITERAL_NUMBER, "100")),
	)

	res, err := e.Run(insert)
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)
	op := e.Buffer().Ops()[0]
	v, ok := op.New.Get("name")
	require.True(t, ok)
	require.Equal(t, "alice", v.String())
}

func TestExecInsert_MultipleRows(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	e := New(store, newFakeCC(), 1)

	row := func(id, bal string, name string) *tree.Node {
		return tree.New(tree.LIST, "",
			tree.New(tree.LITERAL_NUMBER, id), tree.New(tree.LITERAL_STRING, name), tree.New(tree.LITERAL_NUMBER, bal))
	}
	insert := tree.New(tree.INSERT_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		row("1", "100", "alice"),
		row("2", "50", "bob"),
	)

	res, err := e.Run(insert)
	require.NoError(t, err)
	require.Equal(t, 2, res.Affected)
}

func TestExecUpdate_AssignsMatchingRows(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{
		schema: accountsSchema(),
		rows:   []storage.Row{accountRow(1, "alice", 100), accountRow(2, "bob", 50)},
	}
	e := New(store, newFakeCC(), 1)

	update := tree.New(tree.UPDATE_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.ASSIGNMENT, "", tree.New(tree.COLUMN_NAME, "balance"), tree.New(tree.LITERAL_NUMBER, "0")),
		tree.New(tree.COMPARISON, "=", colRefNode("", "name"), tree.New(tree.LITERAL_STRING, "alice")),
	)

	res, err := e.Run(update)
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)
	op := e.Buffer().Ops()[0]
	require.Equal(t, OpUpdate, op.Kind)
	v, _ := op.New.Get("balance")
	require.Equal(t, int64(0), v.I)
}

func TestExecDelete_RemovesMatchingRows(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{
		schema: accountsSchema(),
		rows:   []storage.Row{accountRow(1, "alice", 100), accountRow(2, "bob", 50)},
	}
	e := New(store, newFakeCC(), 1)

	del := tree.New(tree.DELETE_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.COMPARISON, "=", colRefNode("", "name"), tree.New(tree.LITERAL_STRING, "bob")),
	)

	res, err := e.Run(del)
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)
	require.Equal(t, OpDelete, e.Buffer().Ops()[0].Kind)
}

func TestExecUpdate_ThenScanSeesOverlay(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{
		schema: accountsSchema(),
		rows:   []storage.Row{accountRow(1, "alice", 100)},
	}
	e := New(store, newFakeCC(), 1)

	update := tree.New(tree.UPDATE_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.ASSIGNMENT, "", tree.New(tree.COLUMN_NAME, "balance"), tree.New(tree.LITERAL_NUMBER, "5")),
	)
	_, err := e.Run(update)
	require.NoError(t, err)

	res, err := e.Run(relationNode("accounts"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	v, _ := res.Rows[0].Get("balance")
	require.Equal(t, int64(5), v.I)
}
