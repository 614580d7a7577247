package optimizer

import (
	"github.com/bobboyms/reldb/pkg/tree"
)

// Optimize runs the full Optimizer Core pipeline over root: validate
// the input tree, apply the deterministic rewrite rules to a fixed point,
// then search the non-deterministic rewrite parameter space for the
// lowest-cost physical plan. It returns the chosen plan and the individual
// (chromosome plus fitness) that produced it, so a caller can inspect which
// join methods and reassociations were picked.
func Optimize(root *tree.Node, stats StatsProvider, opts Options) (*tree.Node, Individual, error) {
	if err := tree.Validate(root); err != nil {
		return nil, Individual{}, err
	}
	base := ApplyDeterministicRules(root)
	candidates := AnalyzeCandidates(base)
	best := Search(base, candidates, stats, opts)
	plan := Apply(base, best.Params)
	return plan, best, nil
}
