package optimizer

import (
	"math/rand"

	"github.com/bobboyms/reldb/pkg/tree"
)

// paramKind is the per-parameter-space contract the Design Note calls for:
// analyze/generate/copy/mutate/validate, so the search loop iterates a
// registry instead of switching on the parameter kind.
type paramKind interface {
	Tag() ParamKindTag
	Analyze(root *tree.Node) []int64
	Generate(nodeID int64, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{}
	Copy(v interface{}) interface{}
	Mutate(nodeID int64, v interface{}, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{}
	Validate(nodeID int64, v interface{}, root *tree.Node, stats StatsProvider) bool
}

var registry = []paramKind{
	filterParamKind{},
	joinParamKind{},
	joinChildParamKind{},
	joinAssocParamKind{},
	joinMethodParamKind{},
}

func kindFor(tag ParamKindTag) paramKind {
	for _, k := range registry {
		if k.Tag() == tag {
			return k
		}
	}
	return nil
}

// ---- filter_params: cascading/reordering conjuncts of an AND filter ----

type filterParamKind struct{}

func (filterParamKind) Tag() ParamKindTag { return FilterParams }

func (filterParamKind) Analyze(root *tree.Node) []int64 {
	var ids []int64
	for _, f := range root.ByType(tree.FILTER) {
		if len(f.Children) == 2 && f.Children[1].Type == tree.OPERATOR && f.Children[1].Value == "AND" && len(f.Children[1].Children) >= 2 {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func conjunctCount(root *tree.Node, filterID int64) int {
	f := root.FindByID(filterID)
	if f == nil || len(f.Children) != 2 {
		return 0
	}
	return len(f.Children[1].Children)
}

func (filterParamKind) Generate(nodeID int64, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	n := conjunctCount(root, nodeID)
	perm := rng.Perm(n)
	groups := make([]FilterGroup, len(perm))
	for i, idx := range perm {
		groups[i] = FilterGroup{Indices: []int{idx}}
	}
	return groups
}

func (filterParamKind) Copy(v interface{}) interface{} {
	groups := v.([]FilterGroup)
	out := make([]FilterGroup, len(groups))
	for i, g := range groups {
		idx := make([]int, len(g.Indices))
		copy(idx, g.Indices)
		out[i] = FilterGroup{Indices: idx}
	}
	return out
}

func (k filterParamKind) Mutate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	groups := k.Copy(v).([]FilterGroup)
	if len(groups) < 2 {
		return groups
	}
	switch rng.Intn(3) {
	case 0: // swap two positions
		i, j := rng.Intn(len(groups)), rng.Intn(len(groups))
		groups[i], groups[j] = groups[j], groups[i]
	case 1: // merge two adjacent groups
		i := rng.Intn(len(groups) - 1)
		merged := append(append([]int{}, groups[i].Indices...), groups[i+1].Indices...)
		groups = append(append(append([]FilterGroup{}, groups[:i]...), FilterGroup{Indices: merged}), groups[i+2:]...)
	case 2: // split a group back into singles
		for i, g := range groups {
			if len(g.Indices) > 1 {
				split := make([]FilterGroup, 0, len(groups)+len(g.Indices)-1)
				split = append(split, groups[:i]...)
				for _, idx := range g.Indices {
					split = append(split, FilterGroup{Indices: []int{idx}})
				}
				split = append(split, groups[i+1:]...)
				groups = split
				break
			}
		}
	}
	return groups
}

func (filterParamKind) Validate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider) bool {
	groups, ok := v.([]FilterGroup)
	if !ok {
		return false
	}
	n := conjunctCount(root, nodeID)
	seen := make(map[int]bool, n)
	count := 0
	for _, g := range groups {
		if len(g.Indices) == 0 {
			return false
		}
		for _, idx := range g.Indices {
			if idx < 0 || idx >= n || seen[idx] {
				return false
			}
			seen[idx] = true
			count++
		}
	}
	return count == n
}

// ---- join_params: fold a FILTER directly above a JOIN into its condition ----

type joinParamKind struct{}

func (joinParamKind) Tag() ParamKindTag { return JoinParams }

func (joinParamKind) Analyze(root *tree.Node) []int64 {
	var ids []int64
	for _, f := range root.ByType(tree.FILTER) {
		if len(f.Children) == 2 && f.Children[0].Type == tree.JOIN {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (joinParamKind) Generate(nodeID int64, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	return rng.Intn(2) == 0
}

func (joinParamKind) Copy(v interface{}) interface{} { return v }

func (joinParamKind) Mutate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	return !v.(bool)
}

func (joinParamKind) Validate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider) bool {
	_, ok := v.(bool)
	return ok
}

// ---- join_child_params: join commutativity ----

type joinChildParamKind struct{}

func (joinChildParamKind) Tag() ParamKindTag { return JoinChildParams }

func (joinChildParamKind) Analyze(root *tree.Node) []int64 {
	var ids []int64
	for _, j := range root.ByType(tree.JOIN) {
		if len(j.Children) >= 2 {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

func (joinChildParamKind) Generate(nodeID int64, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	j := root.FindByID(nodeID)
	left, right := j.Children[0].ID, j.Children[1].ID
	if rng.Intn(2) == 0 {
		return JoinChildAssignment{Left: left, Right: right}
	}
	return JoinChildAssignment{Left: right, Right: left}
}

func (joinChildParamKind) Copy(v interface{}) interface{} { return v }

func (joinChildParamKind) Mutate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider, rng *rand.Rand) interface{} {
	a := v.(JoinChildAssignment)
	return JoinChildAssignment{Left: a.Right, Right: a.Left}
}

func (joinChildParamKind) Validate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider) bool {
	a, ok := v.(JoinChildAssignment)
	if !ok {
		return false
	}
	j := root.FindByID(nodeID)
	if j == nil || len(j.Children) < 2 {
		return false
	}
	orig := map[int64]bool{j.Children[0].ID: true, j.Children[1].ID: true}
	return len(orig) == 2 && orig[a.Left] && orig[a.Right] && a.Left != a.Right
}

// ---- join_associativity_params ----

type joinAssocParamKind struct{}

func (joinAssocParamKind) Tag() ParamKindTag { return JoinAssociativityParams }

// associativityShape reports which reassociation pattern root matches:
// "AB_C" for JOIN(JOIN(A,B),C), "A_BC" for JOIN(A,JOIN(B,C)), or "" if
// neither.
func associativityShape(root *tree.Node) string {
	if root.Type != tree.JOIN || len(root.Children) < 2 {
		return ""
	}
	if root.Children[0].Type == tree.JOIN {
		return "AB_C"
	}
	if root.Children[1].Type == tree.JOIN {
		return "A_BC"
	}
	return ""
}

func (joinAssocParamKind) Analyze(root *tree.Node) []int64 {
	var ids []int64
	for _, j := range root.ByType(tree.JOIN) {
		if associativityShape(j) != "" {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

func (k joinAssocParamKind) Generate(nodeID int64, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{} {
	choices := []string{AssocNone}
	j := root.FindByID(nodeID)
	switch associativityShape(j) {
	case "AB_C":
		choices = append(choices, AssocRight)
	case "A_BC":
		choices = append(choices, AssocLeft)
	}
	return choices[rng.Intn(len(choices))]
}

func (joinAssocParamKind) Copy(v interface{}) interface{} { return v }

func (k joinAssocParamKind) Mutate(nodeID int64, v interface{}, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{} {
	return k.Generate(nodeID, root, stats, rng)
}

// conditionLocalToChildren reports whether every COLUMN_REF under cond
// resolves to one of the join's two immediate children, i.e. the condition
// needs nothing reassociation would leave behind.
func conditionLocalToChildren(j *tree.Node) bool {
	if len(j.Children) < 3 {
		return true // NATURAL join, no explicit condition to check
	}
	allowed := make(map[string]struct{})
	for k := range referencedTables(j.Children[0]) {
		allowed[k] = struct{}{}
	}
	for k := range referencedTables(j.Children[1]) {
		allowed[k] = struct{}{}
	}
	ok := true
	j.Children[2].PreOrder(func(cur *tree.Node) {
		if cur.Type != tree.COLUMN_REF || len(cur.Children) == 0 {
			return
		}
		if _, found := allowed[cur.Children[0].Value]; !found {
			ok = false
		}
	})
	return ok
}

func (joinAssocParamKind) Validate(nodeID int64, v interface{}, root *tree.Node, _ StatsProvider) bool {
	choice, ok := v.(string)
	if !ok {
		return false
	}
	j := root.FindByID(nodeID)
	if j == nil {
		return false
	}
	if choice == AssocNone {
		return true
	}
	shape := associativityShape(j)
	if (choice == AssocRight && shape != "AB_C") || (choice == AssocLeft && shape != "A_BC") {
		return false
	}
	// Reassociation is rejected if either join's own condition would end up
	// referencing a side not yet materialized at its new position.
	if !conditionLocalToChildren(j) {
		return false
	}
	var inner *tree.Node
	if shape == "AB_C" {
		inner = j.Children[0]
	} else {
		inner = j.Children[1]
	}
	return conditionLocalToChildren(inner)
}

// ---- join_method_params ----

type joinMethodParamKind struct{}

func (joinMethodParamKind) Tag() ParamKindTag { return JoinMethodParams }

func (joinMethodParamKind) Analyze(root *tree.Node) []int64 {
	var ids []int64
	for _, j := range root.ByType(tree.JOIN) {
		if len(j.Children) >= 2 {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

// innerIndexedColumn reports whether the inner (right) child's join column
// carries an index, the precondition for choosing index_nested_loop.
func innerIndexedColumn(j *tree.Node, stats StatsProvider) bool {
	if len(j.Children) < 3 {
		return false
	}
	inner := referencedTables(j.Children[1])
	for _, c := range j.Children[2].Children {
		if c.Type != tree.COLUMN_REF || len(c.Children) == 0 {
			continue
		}
		table := c.Children[0].Value
		if _, present := inner[table]; present && hasIndex(statsOf(stats, table), columnNameOf(c)) {
			return true
		}
	}
	return false
}

func (joinMethodParamKind) Generate(nodeID int64, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{} {
	j := root.FindByID(nodeID)
	choices := []string{MethodNestedLoop, MethodHash}
	if innerIndexedColumn(j, stats) {
		choices = append(choices, MethodIndexNestedLoop)
	}
	return choices[rng.Intn(len(choices))]
}

func (joinMethodParamKind) Copy(v interface{}) interface{} { return v }

func (k joinMethodParamKind) Mutate(nodeID int64, v interface{}, root *tree.Node, stats StatsProvider, rng *rand.Rand) interface{} {
	return k.Generate(nodeID, root, stats, rng)
}

func (joinMethodParamKind) Validate(nodeID int64, v interface{}, root *tree.Node, stats StatsProvider) bool {
	method, ok := v.(string)
	if !ok {
		return false
	}
	if method == MethodIndexNestedLoop {
		j := root.FindByID(nodeID)
		return j != nil && innerIndexedColumn(j, stats)
	}
	return method == MethodNestedLoop || method == MethodHash
}
