package optimizer

import "github.com/bobboyms/reldb/pkg/tree"

// ParamKindTag names one of the five non-deterministic rewrite parameter
// spaces.
type ParamKindTag string

const (
	FilterParams            ParamKindTag = "filter_params"
	JoinParams               ParamKindTag = "join_params"
	JoinChildParams          ParamKindTag = "join_child_params"
	JoinAssociativityParams  ParamKindTag = "join_associativity_params"
	JoinMethodParams         ParamKindTag = "join_method_params"
)

// OperationParams is a genetic individual's chromosome: per parameter kind,
// a per-candidate-node-ID value. New kinds plug in by registering a tag
// here and a paramKind in paramkind.go's registry — the search loop itself
// never switches on the tag.
type OperationParams map[ParamKindTag]map[int64]interface{}

// Clone deep-copies params, delegating each value's copy to its kind so the
// search never shares mutable state between individuals.
func (p OperationParams) Clone() OperationParams {
	out := make(OperationParams, len(p))
	for tag, byNode := range p {
		kind := kindFor(tag)
		cp := make(map[int64]interface{}, len(byNode))
		for id, v := range byNode {
			cp[id] = kind.Copy(v)
		}
		out[tag] = cp
	}
	return out
}

// FilterGroup is one element of a filter_params permutation: a single
// conjunct index, or a group of indices kept together as one AND clause.
type FilterGroup struct {
	Indices []int
}

// JoinChildAssignment is join_child_params' per-JOIN value: which existing
// child ID materializes on the left and which on the right.
type JoinChildAssignment struct {
	Left, Right int64
}

const (
	AssocLeft  = "left"
	AssocRight = "right"
	AssocNone  = "none"

	MethodNestedLoop      = "nested_loop"
	MethodHash            = "hash"
	MethodIndexNestedLoop = "index_nested_loop"
)

// CandidateSet is the per-kind list of node IDs AnalyzeCandidates found
// eligible, handed to Generate/Search so they don't re-walk the tree.
type CandidateSet map[ParamKindTag][]int64

// AnalyzeCandidates walks the deterministic-rule output once, collecting
// every node ID each parameter kind can legally parameterize.
func AnalyzeCandidates(root *tree.Node) CandidateSet {
	out := make(CandidateSet, len(registry))
	for _, kind := range registry {
		out[kind.Tag()] = kind.Analyze(root)
	}
	return out
}
