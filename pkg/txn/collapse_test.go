package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/executor"
	"github.com/bobboyms/reldb/pkg/storage"
)

func TestCollapseUpdates_KeepsFirstOldAndLastNewByPrimaryKey(t *testing.T) {
	schema := accountsSchema()
	row1 := accountRow(1, "alice", 100)
	row2 := accountRow(1, "alice", 90)
	row3 := accountRow(1, "alice", 80)

	ops := []executor.BufferedOperation{
		{Kind: executor.OpUpdate, Table: "accounts", Old: row1, New: row2},
		{Kind: executor.OpUpdate, Table: "accounts", Old: row2, New: row3},
	}

	pairs := collapseUpdates(schema, ops)
	require.Len(t, pairs, 1)
	require.True(t, pairs[0].Old.Equal(row1))
	require.True(t, pairs[0].New.Equal(row3))
}

func TestCollapseUpdates_DropsPairThatNetsToNoChange(t *testing.T) {
	schema := accountsSchema()
	row1 := accountRow(1, "alice", 100)
	row2 := accountRow(1, "alice", 90)

	ops := []executor.BufferedOperation{
		{Kind: executor.OpUpdate, Table: "accounts", Old: row1, New: row2},
		{Kind: executor.OpUpdate, Table: "accounts", Old: row2, New: row1},
	}

	pairs := collapseUpdates(schema, ops)
	require.Empty(t, pairs)
}

func TestCollapseUpdates_DistinctRowsCollapseIndependently(t *testing.T) {
	schema := accountsSchema()
	alice1 := accountRow(1, "alice", 100)
	alice2 := accountRow(1, "alice", 90)
	bob1 := accountRow(2, "bob", 50)
	bob2 := accountRow(2, "bob", 60)

	ops := []executor.BufferedOperation{
		{Kind: executor.OpUpdate, Table: "accounts", Old: alice1, New: alice2},
		{Kind: executor.OpUpdate, Table: "accounts", Old: bob1, New: bob2},
	}

	pairs := collapseUpdates(schema, ops)
	require.Len(t, pairs, 2)
}

func TestGroupAndCollapse_PartitionsByTableAndKind(t *testing.T) {
	c, _ := newCoordinator()

	ops := []executor.BufferedOperation{
		{Kind: executor.OpInsert, Table: "accounts", New: accountRow(3, "carol", 10)},
		{Kind: executor.OpDelete, Table: "accounts", Old: accountRow(4, "dave", 20)},
		{Kind: executor.OpUpdate, Table: "accounts", Old: accountRow(1, "alice", 100), New: accountRow(1, "alice", 90)},
	}

	batches, err := c.groupAndCollapse(ops)
	require.NoError(t, err)
	batch := batches["accounts"]
	require.Len(t, batch.inserts, 1)
	require.Len(t, batch.deletes, 1)
	require.Len(t, batch.updates, 1)
}

func TestIdentityConditions_MatchesEveryColumn(t *testing.T) {
	row := accountRow(1, "alice", 100)
	conds := identityConditions(row)
	require.Len(t, conds, len(row))
	for _, c := range conds {
		require.Equal(t, storage.OpEq, c.Op)
	}
}
