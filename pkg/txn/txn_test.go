package txn

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
	"github.com/bobboyms/reldb/pkg/types"
)

func accountsSchema() storage.Schema {
	return storage.Schema{Columns: []storage.Column{
		{Name: "id", Type: storage.TypeInt, PrimaryKey: true},
		{Name: "name", Type: storage.TypeVarchar},
		{Name: "balance", Type: storage.TypeInt},
	}}
}

func accountRow(id int64, name string, balance int64) storage.Row {
	var r storage.Row
	r = r.With("id", types.Int(id))
	r = r.With("name", types.String(name))
	r = r.With("balance", types.Int(balance))
	return r
}

func insertNode(id, balance int64, name string) *tree.Node {
	return tree.New(tree.INSERT_QUERY, "",
		tree.New(tree.TABLE_NAME, "accounts"),
		tree.New(tree.LIST, "",
			tree.New(tree.LITERAL_NUMBER, strconv.FormatInt(id, 10)),
			tree.New(tree.LITERAL_STRING, name),
			tree.New(tree.LITERAL_NUMBER, strconv.FormatInt(balance, 10))),
	)
}

func newCoordinator() (*Coordinator, *fakeStore) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	c := New(store, newFakeCC(), newFakeLog())
	return c, store
}

func TestExecute_AutoCommitInsertFlushesToStore(t *testing.T) {
	c, store := newCoordinator()
	client := NewClientID()

	_, err := c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)

	require.Len(t, store.tables["accounts"].rows, 1)
	v, ok := store.tables["accounts"].rows[0].Get("name")
	require.True(t, ok)
	require.Equal(t, "alice", v.String())

	// auto-commit leaves no session-level transaction behind
	sess := c.session(client)
	require.Nil(t, sess.txn)
}

func TestExecute_ExplicitTransactionCommitsOnce(t *testing.T) {
	c, store := newCoordinator()
	client := NewClientID()

	_, err := c.Execute(client, tree.New(tree.BEGIN_TRANSACTION, ""))
	require.NoError(t, err)

	_, err = c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)
	_, err = c.Execute(client, insertNode(2, 50, "bob"))
	require.NoError(t, err)

	// nothing flushed to Storage until COMMIT
	require.Len(t, store.tables["accounts"].rows, 0)

	_, err = c.Execute(client, tree.New(tree.COMMIT, ""))
	require.NoError(t, err)
	require.Len(t, store.tables["accounts"].rows, 2)
}

func TestExecute_AbortDiscardsUnflushedBuffer(t *testing.T) {
	c, store := newCoordinator()
	client := NewClientID()

	_, err := c.Execute(client, tree.New(tree.BEGIN_TRANSACTION, ""))
	require.NoError(t, err)
	_, err = c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)

	require.NoError(t, c.Abort(client))
	require.Len(t, store.tables["accounts"].rows, 0)

	sess := c.session(client)
	require.Nil(t, sess.txn)
}

func TestExecute_CheckpointThenAbortUndoesFlushedWrites(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	c := New(store, newFakeCC(), newFakeLog()).WithCheckpointThreshold(1)
	client := NewClientID()

	_, err := c.Execute(client, tree.New(tree.BEGIN_TRANSACTION, ""))
	require.NoError(t, err)

	_, err = c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)

	// threshold of 1 forces a checkpoint right after the write is logged,
	// flushing the insert to Storage ahead of commit
	require.Len(t, store.tables["accounts"].rows, 1)

	require.NoError(t, c.Abort(client))
	// recover_transaction must see the write crossed a checkpoint and
	// undo it by deleting the row back out of Storage
	require.Len(t, store.tables["accounts"].rows, 0)
}

func TestExecute_DieVerdictAbortsAutomatically(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{
		schema: accountsSchema(),
		rows:   []storage.Row{accountRow(1, "alice", 100)},
	}
	cc := newFakeCC()
	cc.verdict = lock.Die
	cc.variant = lock.WaitDieVariant
	c := New(store, cc, newFakeLog())
	client := NewClientID()

	del := tree.New(tree.DELETE_QUERY, "", tree.New(tree.TABLE_NAME, "accounts"))
	_, err := c.Execute(client, del)
	require.Error(t, err)

	sess := c.session(client)
	require.Nil(t, sess.txn)
	require.NotEmpty(t, cc.ended)
	require.Equal(t, lock.Abort, cc.ended[len(cc.ended)-1].outcome)
}

func TestExecute_WaitVerdictRetriesUntilGranted(t *testing.T) {
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	cc := newFakeCC()
	cc.waitCountdown = 3
	cc.verdict = lock.Grant
	c := New(store, cc, newFakeLog())
	client := NewClientID()

	_, err := c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)
	require.Greater(t, cc.validateCalls, 3)
}

func TestExecute_LogRecordsBeginWriteCommitInOrder(t *testing.T) {
	log := newFakeLog()
	store := newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: accountsSchema()}
	c := New(store, newFakeCC(), log)
	client := NewClientID()

	_, err := c.Execute(client, insertNode(1, 100, "alice"))
	require.NoError(t, err)

	var kinds []string
	for _, rec := range log.records {
		kinds = append(kinds, rec.kind)
	}
	require.Equal(t, []string{"begin", "write", "commit"}, kinds)
}
