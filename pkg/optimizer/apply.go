package optimizer

import "github.com/bobboyms/reldb/pkg/tree"

// Apply materializes a chromosome onto base, producing the concrete
// physical plan a given individual scores. base is never mutated; every
// pass rebuilds the subtrees it touches. Passes run in a fixed order since
// later ones (join_child_params, join_params, join_method_params,
// filter_params) address nodes the earlier structural pass
// (join_associativity_params) may have reshaped — a parameter that no
// longer matches the tree it addresses (because reassociation moved its
// node) is simply skipped rather than applied inconsistently.
func Apply(base *tree.Node, params OperationParams) *tree.Node {
	cur := applyAssociativity(base, params[JoinAssociativityParams])
	cur = applyJoinChild(cur, params[JoinChildParams])
	cur = applyJoinFold(cur, params[JoinParams])
	cur = applyJoinMethod(cur, params[JoinMethodParams])
	cur = applyFilterCascade(cur, params[FilterParams])
	return cur
}

func applyAssociativity(n *tree.Node, byNode map[int64]interface{}) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = applyAssociativity(c, byNode)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.JOIN {
		return rewritten
	}
	choice, ok := byNode[rewritten.ID].(string)
	if !ok {
		return rewritten
	}
	return reassociate(rewritten, choice)
}

func reassociate(j *tree.Node, pick string) *tree.Node {
	shape := associativityShape(j)
	if pick == AssocNone || shape == "" {
		return j
	}
	if pick == AssocRight && shape == "AB_C" {
		inner, c := j.Children[0], j.Children[1]
		a, b := inner.Children[0], inner.Children[1]
		var conjuncts []*tree.Node
		if len(inner.Children) > 2 {
			conjuncts = append(conjuncts, andConjuncts(inner.Children[2])...)
		}
		if len(j.Children) > 2 {
			conjuncts = append(conjuncts, andConjuncts(j.Children[2])...)
		}
		bTables, cTables := referencedTables(b), referencedTables(c)
		atInner, remainder := placeConjuncts(conjuncts, bTables, cTables)
		newInner := joinOf(inner.ID, b, c, atInner)

		aTables, newInnerTables := referencedTables(a), referencedTables(newInner)
		atOuter, remainder2 := placeConjuncts(remainder, aTables, newInnerTables)
		return joinOf(j.ID, a, newInner, append(atOuter, remainder2...))
	}
	if pick == AssocLeft && shape == "A_BC" {
		a, inner := j.Children[0], j.Children[1]
		b, c := inner.Children[0], inner.Children[1]
		var conjuncts []*tree.Node
		if len(j.Children) > 2 {
			conjuncts = append(conjuncts, andConjuncts(j.Children[2])...)
		}
		if len(inner.Children) > 2 {
			conjuncts = append(conjuncts, andConjuncts(inner.Children[2])...)
		}
		aTables, bTables := referencedTables(a), referencedTables(b)
		atInner, remainder := placeConjuncts(conjuncts, aTables, bTables)
		newInner := joinOf(inner.ID, a, b, atInner)

		newInnerTables, cTables := referencedTables(newInner), referencedTables(c)
		atOuter, remainder2 := placeConjuncts(remainder, newInnerTables, cTables)
		return joinOf(j.ID, newInner, c, append(atOuter, remainder2...))
	}
	return j
}

func joinOf(id int64, left, right *tree.Node, conjuncts []*tree.Node) *tree.Node {
	if len(conjuncts) == 0 {
		return &tree.Node{Type: tree.JOIN, Children: []*tree.Node{left, right}, ID: id}
	}
	return &tree.Node{Type: tree.JOIN, Children: []*tree.Node{left, right, andOf(conjuncts)}, ID: id}
}

// placeConjuncts assigns each conjunct to this join if every table it
// references is available among left/right, leaving the rest as remainder
// for an ancestor join (or filter) to carry.
func placeConjuncts(conjuncts []*tree.Node, left, right map[string]struct{}) (here, remainder []*tree.Node) {
	allowed := make(map[string]struct{}, len(left)+len(right))
	for k := range left {
		allowed[k] = struct{}{}
	}
	for k := range right {
		allowed[k] = struct{}{}
	}
	for _, c := range conjuncts {
		if conjunctSubsetOf(c, allowed) {
			here = append(here, c)
		} else {
			remainder = append(remainder, c)
		}
	}
	return here, remainder
}

func conjunctSubsetOf(c *tree.Node, allowed map[string]struct{}) bool {
	ok := true
	c.PreOrder(func(cur *tree.Node) {
		if cur.Type != tree.COLUMN_REF || len(cur.Children) == 0 {
			return
		}
		if _, found := allowed[cur.Children[0].Value]; !found {
			ok = false
		}
	})
	return ok
}

func applyJoinChild(n *tree.Node, byNode map[int64]interface{}) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = applyJoinChild(c, byNode)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.JOIN || len(rewritten.Children) < 2 {
		return rewritten
	}
	a, ok := byNode[rewritten.ID].(JoinChildAssignment)
	if !ok {
		return rewritten
	}
	left, right := rewritten.Children[0], rewritten.Children[1]
	if a.Left == left.ID && a.Right == right.ID {
		return rewritten
	}
	if a.Left == right.ID && a.Right == left.ID {
		swapped := append([]*tree.Node{right, left}, rewritten.Children[2:]...)
		return &tree.Node{Type: tree.JOIN, Value: rewritten.Value, Children: swapped, ID: rewritten.ID}
	}
	// Stale: reassociation moved this join's children since the parameter
	// was generated. Leave the join as materialized by the earlier pass.
	return rewritten
}

func applyJoinFold(n *tree.Node, byNode map[int64]interface{}) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = applyJoinFold(c, byNode)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.FILTER || len(rewritten.Children) != 2 {
		return rewritten
	}
	fold, ok := byNode[rewritten.ID].(bool)
	source, cond := rewritten.Children[0], rewritten.Children[1]
	if !ok || !fold || source.Type != tree.JOIN {
		return rewritten
	}
	joinConjuncts := andConjuncts(cond)
	if len(source.Children) > 2 {
		joinConjuncts = append(andConjuncts(source.Children[2]), joinConjuncts...)
	}
	folded := joinOf(source.ID, source.Children[0], source.Children[1], joinConjuncts)
	folded.Children = append(folded.Children, source.Children[2:]...)
	return folded
}

func applyJoinMethod(n *tree.Node, byNode map[int64]interface{}) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = applyJoinMethod(c, byNode)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.JOIN {
		return rewritten
	}
	if method, ok := byNode[rewritten.ID].(string); ok {
		rewritten.Value = method
	}
	return rewritten
}

func applyFilterCascade(n *tree.Node, byNode map[int64]interface{}) *tree.Node {
	if n == nil {
		return nil
	}
	children := make([]*tree.Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = applyFilterCascade(c, byNode)
	}
	rewritten := &tree.Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}

	if rewritten.Type != tree.FILTER || len(rewritten.Children) != 2 {
		return rewritten
	}
	groups, ok := byNode[rewritten.ID].([]FilterGroup)
	if !ok {
		return rewritten
	}
	source, cond := rewritten.Children[0], rewritten.Children[1]
	if cond.Type != tree.OPERATOR || cond.Value != "AND" {
		return rewritten
	}
	conjuncts := cond.Children

	cascade := source
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		sub := make([]*tree.Node, 0, len(g.Indices))
		for _, idx := range g.Indices {
			if idx < 0 || idx >= len(conjuncts) {
				return rewritten // stale parameter, bail out to the unmodified filter
			}
			sub = append(sub, conjuncts[idx])
		}
		cascade = tree.New(tree.FILTER, "", cascade, andOf(sub))
	}
	return cascade
}
