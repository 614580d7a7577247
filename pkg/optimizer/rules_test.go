package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/tree"
)

func relation(table string) *tree.Node {
	return tree.New(tree.RELATION, "", tree.New(tree.TABLE_NAME, table))
}

func colRef(table, col string) *tree.Node {
	if table == "" {
		return tree.New(tree.COLUMN_REF, col)
	}
	return tree.New(tree.COLUMN_REF, col, tree.New(tree.TABLE_NAME, table))
}

func cmp(op string, left, right *tree.Node) *tree.Node {
	return tree.New(tree.COMPARISON, op, left, right)
}

func lit(n string) *tree.Node {
	return tree.New(tree.LITERAL_NUMBER, n)
}

func TestEliminateRedundantProjections(t *testing.T) {
	inner := tree.New(tree.PROJECT, "", colRef("", "a"), relation("accounts"))
	outer := tree.New(tree.PROJECT, "", colRef("", "b"), inner)

	got := eliminateRedundantProjections(outer)
	require.Equal(t, tree.PROJECT, got.Type)
	require.Len(t, got.Children, 2)
	require.Equal(t, tree.RELATION, got.Children[1].Type)
}

func TestPushFilterBelowJoin(t *testing.T) {
	join := tree.New(tree.JOIN, "", relation("accounts"), relation("orders"))
	cond := tree.New(tree.OPERATOR, "AND",
		cmp("=", colRef("accounts", "status"), lit("1")),
		cmp("=", colRef("orders", "state"), lit("2")),
	)
	filter := tree.New(tree.FILTER, "", join, cond)

	got := pushFilterBelowJoin(filter)
	require.Equal(t, tree.JOIN, got.Type)
	require.Equal(t, tree.FILTER, got.Children[0].Type)
	require.Equal(t, tree.FILTER, got.Children[1].Type)
}

func TestPushFilterBelowJoin_CrossSideConjunctStaysAbove(t *testing.T) {
	join := tree.New(tree.JOIN, "", relation("accounts"), relation("orders"))
	cond := cmp("=", colRef("accounts", "id"), colRef("orders", "account_id"))
	filter := tree.New(tree.FILTER, "", join, cond)

	got := pushFilterBelowJoin(filter)
	require.Equal(t, tree.FILTER, got.Type)
	require.Equal(t, tree.JOIN, got.Children[0].Type)
	require.Equal(t, tree.RELATION, got.Children[0].Children[0].Type)
	require.Equal(t, tree.RELATION, got.Children[0].Children[1].Type)
}

func TestPushProjectionBelowJoin(t *testing.T) {
	join := tree.New(tree.JOIN, "", relation("accounts"), relation("orders"),
		cmp("=", colRef("accounts", "id"), colRef("orders", "account_id")))
	project := tree.New(tree.PROJECT, "", colRef("accounts", "name"), join)

	got := pushProjectionBelowJoin(project)
	require.Equal(t, tree.PROJECT, got.Type)
	innerJoin := got.Children[len(got.Children)-1]
	require.Equal(t, tree.JOIN, innerJoin.Type)
	require.Equal(t, tree.PROJECT, innerJoin.Children[0].Type)
	require.Equal(t, tree.PROJECT, innerJoin.Children[1].Type)
}

func TestApplyDeterministicRules_Idempotent(t *testing.T) {
	join := tree.New(tree.JOIN, "", relation("accounts"), relation("orders"),
		cmp("=", colRef("accounts", "id"), colRef("orders", "account_id")))
	cond := tree.New(tree.OPERATOR, "AND",
		cmp("=", colRef("accounts", "status"), lit("1")),
		cmp("=", colRef("orders", "state"), lit("2")),
	)
	root := tree.New(tree.PROJECT, "", colRef("accounts", "name"), tree.New(tree.FILTER, "", join, cond))

	once := ApplyDeterministicRules(root)
	twice := ApplyDeterministicRules(once)
	require.True(t, sameShape(once, twice))
	require.NoError(t, tree.Validate(once))
}
