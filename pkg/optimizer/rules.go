// Package optimizer implements the Optimizer Core: deterministic rewrite
// rules applied once, a cost model over physical plans, and a genetic
// search over the non-deterministic rewrite parameter space, all operating
// on the algebraic tree shared with the SQL front end and the executor.
package optimizer

import (
	"sort"

	"github.com/bobboyms/reldb/pkg/tree"
)

// ApplyDeterministicRules runs the fixed rewrite set — projection
// elimination, filter pushdown over join, projection pushdown over join —
// to a fixed point. These never revisit the genetic search; the search
// only ever sees the tree they produce.
func ApplyDeterministicRules(root *tree.Node) *tree.Node {
	cur := root
	for i := 0; i < 8; i++ {
		next := eliminateRedundantProjections(cur)
		next = pushFilterBelowJoin(next)
		next = pushProjectionBelowJoin(next)
		if sameShape(next, cur) {
			return next
		}
		cur = next
	}
	return cur
}

// sameShape is a cheap structural-equality check (type, value, children
// recursively) used to detect the rewrite fixed point without relying on
// node IDs, which change as rules synthesize new nodes.
func sameShape(a, b *tree.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.Value != b.Value || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !sameShape(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// eliminateRedundantProjections rewrites PROJECT(cols, PROJECT(_, X)) to
// PROJECT(cols, X): the outer projection's column list already determines
// the output, so an immediately nested PROJECT is pure overhead.
func eliminateRedundantProjections(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = eliminateRedundantProjections(c)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type == tree.PROJECT && len(rewritten.Children) >= 1 {
		source := rewritten.Children[len(rewritten.Children)-1]
		if source.Type == tree.PROJECT && len(source.Children) >= 1 {
			inner := source.Children[len(source.Children)-1]
			cols := rewritten.Children[:len(rewritten.Children)-1]
			newChildren := append(append([]*tree.Node{}, cols...), inner)
			return &tree.Node{Type: tree.PROJECT, Value: rewritten.Value, Children: newChildren, ID: rewritten.ID}
		}
	}
	return rewritten
}

// referencedTables collects every TABLE_NAME/ALIAS label reachable under n,
// i.e. the set of relation names a subtree could supply columns from.
func referencedTables(n *tree.Node) map[string]struct{} {
	out := make(map[string]struct{})
	if n == nil {
		return out
	}
	n.PreOrder(func(cur *tree.Node) {
		switch cur.Type {
		case tree.TABLE_NAME, tree.ALIAS:
			out[cur.Value] = struct{}{}
		}
	})
	return out
}

// conjunctTable returns the single table a conjunct refers to, and whether
// every COLUMN_REF inside it resolves to that one table (qualified and
// consistent). A conjunct referencing more than one table, or any
// unqualified column, cannot be safely pushed to one side of a join.
func conjunctTable(cond *tree.Node) (string, bool) {
	var tables []string
	ambiguous := false
	cond.PreOrder(func(cur *tree.Node) {
		if cur.Type != tree.COLUMN_REF {
			return
		}
		if len(cur.Children) == 0 {
			ambiguous = true
			return
		}
		tables = append(tables, cur.Children[0].Value)
	})
	if ambiguous || len(tables) == 0 {
		return "", false
	}
	first := tables[0]
	for _, t := range tables[1:] {
		if t != first {
			return "", false
		}
	}
	return first, true
}

// andConjuncts flattens an OPERATOR("AND") tree into its leaf conjuncts; a
// condition that isn't an AND is its own single conjunct.
func andConjuncts(cond *tree.Node) []*tree.Node {
	if cond.Type == tree.OPERATOR && cond.Value == "AND" {
		var out []*tree.Node
		for _, c := range cond.Children {
			out = append(out, andConjuncts(c)...)
		}
		return out
	}
	return []*tree.Node{cond}
}

// andOf rebuilds an AND tree from a non-empty conjunct list, collapsing to
// the single conjunct when there is only one.
func andOf(conjuncts []*tree.Node) *tree.Node {
	if len(conjuncts) == 1 {
		return conjuncts[0]
	}
	return tree.New(tree.OPERATOR, "AND", conjuncts...)
}

// pushFilterBelowJoin rewrites FILTER(c, JOIN(A, B)) into
// JOIN(FILTER(c_A, A), FILTER(c_B, B)), partitioning c's AND-conjuncts by
// which single side they reference; conjuncts touching both sides (or an
// unqualified column) stay in a FILTER above the join.
func pushFilterBelowJoin(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = pushFilterBelowJoin(c)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.FILTER || len(rewritten.Children) != 2 {
		return rewritten
	}
	source, cond := rewritten.Children[0], rewritten.Children[1]
	if source.Type != tree.JOIN || len(source.Children) < 2 {
		return rewritten
	}
	left, right := source.Children[0], source.Children[1]
	leftTables, rightTables := referencedTables(left), referencedTables(right)

	var leftConj, rightConj, aboveConj []*tree.Node
	for _, conj := range andConjuncts(cond) {
		table, ok := conjunctTable(conj)
		switch {
		case ok && inSet(leftTables, table):
			leftConj = append(leftConj, conj)
		case ok && inSet(rightTables, table):
			rightConj = append(rightConj, conj)
		default:
			aboveConj = append(aboveConj, conj)
		}
	}

	newLeft, newRight := left, right
	if len(leftConj) > 0 {
		newLeft = tree.New(tree.FILTER, "", left, andOf(leftConj))
	}
	if len(rightConj) > 0 {
		newRight = tree.New(tree.FILTER, "", right, andOf(rightConj))
	}
	joinChildren := append([]*tree.Node{newLeft, newRight}, source.Children[2:]...)
	newJoin := &tree.Node{Type: tree.JOIN, Value: source.Value, Children: joinChildren, ID: source.ID}

	if len(aboveConj) == 0 {
		return newJoin
	}
	return &tree.Node{Type: tree.FILTER, Children: []*tree.Node{newJoin, andOf(aboveConj)}, ID: rewritten.ID}
}

func inSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// columnRefsIn collects the distinct column names a node subtree references
// via COLUMN_REF, scoped to the given table when qualified, or counted
// against every candidate table when unqualified (conservative: keep it on
// both sides rather than silently drop it).
func columnRefsIn(n *tree.Node, tables map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if n == nil {
		return out
	}
	n.PreOrder(func(cur *tree.Node) {
		if cur.Type != tree.COLUMN_REF || len(cur.Children) == 0 {
			return
		}
		col := columnNameOf(cur)
		table := cur.Children[0].Value
		if _, ok := tables[table]; ok && col != "" {
			out[col] = struct{}{}
		}
	})
	return out
}

func columnNameOf(ref *tree.Node) string {
	for _, c := range ref.Children {
		if c.Type != tree.TABLE_NAME {
			return c.Value
		}
	}
	// COLUMN_REF's own Value carries the name when it has no qualifier child.
	return ref.Value
}

// pushProjectionBelowJoin rewrites PROJECT(cols, JOIN(A, B)) into
// PROJECT(cols, JOIN(PROJECT(needed_A, A), PROJECT(needed_B, B))), where
// needed_X is cols restricted to X plus whatever the join condition itself
// references on that side.
func pushProjectionBelowJoin(n *tree.Node) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = pushProjectionBelowJoin(c)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.PROJECT || rewritten.Value == "*" || len(rewritten.Children) < 2 {
		return rewritten
	}
	source := rewritten.Children[len(rewritten.Children)-1]
	if source.Type != tree.JOIN || len(source.Children) < 2 {
		return rewritten
	}
	cols := rewritten.Children[:len(rewritten.Children)-1]
	left, right := source.Children[0], source.Children[1]
	leftTables, rightTables := referencedTables(left), referencedTables(right)

	neededLeft := make(map[string]struct{})
	neededRight := make(map[string]struct{})
	for _, col := range cols {
		for c := range columnRefsIn(col, leftTables) {
			neededLeft[c] = struct{}{}
		}
		for c := range columnRefsIn(col, rightTables) {
			neededRight[c] = struct{}{}
		}
	}
	if len(source.Children) > 2 {
		cond := source.Children[2]
		for c := range columnRefsIn(cond, leftTables) {
			neededLeft[c] = struct{}{}
		}
		for c := range columnRefsIn(cond, rightTables) {
			neededRight[c] = struct{}{}
		}
	}

	if len(neededLeft) == 0 || len(neededRight) == 0 {
		return rewritten
	}

	newLeft := tree.New(tree.PROJECT, "", append(columnList(neededLeft), left)...)
	newRight := tree.New(tree.PROJECT, "", append(columnList(neededRight), right)...)
	joinChildren := append([]*tree.Node{newLeft, newRight}, source.Children[2:]...)
	newJoin := &tree.Node{Type: tree.JOIN, Value: source.Value, Children: joinChildren, ID: source.ID}

	outChildren := append(append([]*tree.Node{}, cols...), newJoin)
	return &tree.Node{Type: tree.PROJECT, Value: rewritten.Value, Children: outChildren, ID: rewritten.ID}
}

func columnList(cols map[string]struct{}) []*tree.Node {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*tree.Node, 0, len(names))
	for _, name := range names {
		out = append(out, tree.New(tree.COLUMN_NAME, name))
	}
	return out
}
