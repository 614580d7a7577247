package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/tree"
)

func TestReassociate_RightShiftsABCtoABC(t *testing.T) {
	inner := tree.New(tree.JOIN, "", relation("a"), relation("b"),
		cmp("=", colRef("a", "x"), colRef("b", "x")))
	outer := tree.New(tree.JOIN, "", inner, relation("c"),
		cmp("=", colRef("b", "y"), colRef("c", "y")))

	got := reassociate(outer, AssocRight)
	require.Equal(t, tree.JOIN, got.Type)
	require.Equal(t, outer.ID, got.ID)
	require.Equal(t, tree.RELATION, got.Children[0].Type)
	require.Equal(t, tree.JOIN, got.Children[1].Type)
	require.Equal(t, inner.ID, got.Children[1].ID)

	newInner := got.Children[1]
	require.Equal(t, tree.RELATION, newInner.Children[0].Type)
	require.Equal(t, tree.RELATION, newInner.Children[1].Type)
	require.Len(t, newInner.Children, 3, "b.y = c.y belongs at the new inner join")
}

func TestReassociate_NoneLeavesTreeUnchanged(t *testing.T) {
	inner := tree.New(tree.JOIN, "", relation("a"), relation("b"))
	outer := tree.New(tree.JOIN, "", inner, relation("c"))
	require.True(t, sameShape(outer, reassociate(outer, AssocNone)))
}

func TestApplyJoinMethod(t *testing.T) {
	j := tree.New(tree.JOIN, "", relation("a"), relation("b"))
	params := OperationParams{JoinMethodParams: {j.ID: MethodHash}}
	got := Apply(j, params)
	require.Equal(t, MethodHash, got.Value)
}

func TestApplyJoinChild_Swap(t *testing.T) {
	left, right := relation("a"), relation("b")
	j := tree.New(tree.JOIN, "", left, right)
	params := OperationParams{
		JoinChildParams: {j.ID: JoinChildAssignment{Left: right.ID, Right: left.ID}},
	}
	got := Apply(j, params)
	require.Equal(t, right.ID, got.Children[0].ID)
	require.Equal(t, left.ID, got.Children[1].ID)
}

func TestApplyJoinFold(t *testing.T) {
	j := tree.New(tree.JOIN, "", relation("a"), relation("b"))
	f := tree.New(tree.FILTER, "", j, cmp("=", colRef("a", "x"), colRef("b", "x")))
	params := OperationParams{JoinParams: {f.ID: true}}

	got := Apply(f, params)
	require.Equal(t, tree.JOIN, got.Type)
	require.Len(t, got.Children, 3)
}

func TestApplyFilterCascade(t *testing.T) {
	src := relation("a")
	cond := tree.New(tree.OPERATOR, "AND",
		cmp("=", colRef("a", "x"), lit("1")),
		cmp("=", colRef("a", "y"), lit("2")),
	)
	f := tree.New(tree.FILTER, "", src, cond)
	params := OperationParams{
		FilterParams: {f.ID: []FilterGroup{{Indices: []int{1}}, {Indices: []int{0}}}},
	}

	got := Apply(f, params)
	require.Equal(t, tree.FILTER, got.Type)
	require.NoError(t, tree.Validate(got))
	outerCond := got.Children[1]
	require.Equal(t, "2", outerCond.Children[1].Value, "group ordered first (index 1, y=2) applies outermost")
	inner := got.Children[0]
	require.Equal(t, tree.FILTER, inner.Type)
	require.Equal(t, "1", inner.Children[1].Children[1].Value, "group ordered second (index 0, x=1) applies innermost")
	require.Equal(t, tree.RELATION, inner.Children[0].Type)
}
