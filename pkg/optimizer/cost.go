package optimizer

import (
	"math"

	"github.com/bobboyms/reldb/pkg/tree"
)

// Cost parameters, held as named constants rather than a config struct
// since no caller needs to vary them independently of the rest of the
// model.
const (
	seqIOCost        = 1.0
	randomIOCost     = 1.5
	perTupleCPU      = 0.01
	perComparisonCPU = 0.001
	perHashCPU       = 0.005
	perSortCompareCPU = 0.002
)

// planStats is the per-subtree estimate the cost walk threads bottom-up:
// rows and blocks feed the parent operator's formula, cost accumulates.
type planStats struct {
	cost   float64
	rows   float64
	blocks float64
}

// Estimate computes the estimated cost of a physical plan rooted at n,
// under the given statistics provider. The plan must already carry
// join_method_params decisions (JOIN.Value) from Apply; a JOIN left
// untagged costs as nested_loop.
func Estimate(n *tree.Node, stats StatsProvider) float64 {
	return estimate(n, stats).cost
}

func estimate(n *tree.Node, stats StatsProvider) planStats {
	switch n.Type {
	case tree.RELATION, tree.ALIAS:
		return estimateRelation(n, stats)

	case tree.PROJECT:
		source := estimate(n.Children[len(n.Children)-1], stats)
		return planStats{cost: source.cost, rows: source.rows, blocks: source.blocks}

	case tree.FILTER:
		source := estimate(n.Children[0], stats)
		cond := n.Children[1]
		sel := selectivity(cond, stats)
		conjuncts := len(andConjuncts(cond))
		return planStats{
			cost:   source.cost + source.rows*float64(conjuncts)*perComparisonCPU,
			rows:   source.rows * sel,
			blocks: source.blocks,
		}

	case tree.JOIN:
		return estimateJoin(n, stats)

	case tree.SORT:
		source := estimate(n.Children[0], stats)
		passes := sortPasses(source.blocks)
		cpu := source.rows * log2(source.rows) * perSortCompareCPU
		return planStats{
			cost:   source.cost + 2*source.blocks*(passes+1) + cpu,
			rows:   source.rows,
			blocks: source.blocks,
		}

	case tree.LIMIT:
		source := estimate(n.Children[0], stats)
		limit := parseLimit(n.Value)
		rows := source.rows
		if limit >= 0 && float64(limit) < rows {
			rows = float64(limit)
		}
		return planStats{cost: source.cost, rows: rows, blocks: source.blocks}

	default:
		// Non-relational nodes (expressions, DML, DDL) carry no cost of
		// their own; a caller estimating a DML statement's source plan
		// recurses into its relational child directly.
		if len(n.Children) > 0 {
			return estimate(n.Children[0], stats)
		}
		return planStats{}
	}
}

func estimateRelation(n *tree.Node, stats StatsProvider) planStats {
	table := underlyingTable(n)
	s := statsOf(stats, table)
	rows := float64(s.RowCount)
	blocks := float64(s.BlockCount)
	return planStats{
		cost:   blocks*seqIOCost + rows*perTupleCPU,
		rows:   rows,
		blocks: blocks,
	}
}

func underlyingTable(n *tree.Node) string {
	var table string
	n.PreOrder(func(cur *tree.Node) {
		if table == "" && cur.Type == tree.TABLE_NAME {
			table = cur.Value
		}
	})
	return table
}

func estimateJoin(n *tree.Node, stats StatsProvider) planStats {
	outer := estimate(n.Children[0], stats)
	inner := estimate(n.Children[1], stats)

	var cond *tree.Node
	if len(n.Children) > 2 {
		cond = n.Children[2]
	}
	sel := 0.33
	if cond != nil {
		sel = selectivity(cond, stats)
	}
	rows := outer.rows * inner.rows * sel

	method := n.Value
	var cost float64
	switch method {
	case "hash":
		cost = outer.cost + inner.cost + inner.blocks*2.0
	case "index_nested_loop":
		indexCost := (indexHeight(inner.rows) + 1) * randomIOCost
		cost = outer.cost + outer.rows*indexCost + inner.blocks
	default: // "nested_loop" or unset
		cost = outer.blocks + outer.blocks*inner.blocks
	}
	return planStats{cost: cost, rows: rows, blocks: outer.blocks + inner.blocks}
}

// indexHeight estimates a B+Tree's height over n rows for the index
// nested-loop cost formula's (h+1) term; DefaultTreeGrade mirrors the
// engine's fixed branching factor.
func indexHeight(n float64) float64 {
	if n <= 1 {
		return 1
	}
	const grade = 64
	return math.Ceil(math.Log(n) / math.Log(float64(grade)))
}

func sortPasses(blocks float64) float64 {
	// Memory budget is out of scope for this model (no configurable buffer
	// pool size is threaded through); approximate as a single merge pass,
	// matching an in-memory sort over the blocks already scanned.
	_ = blocks
	return 1
}

func log2(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log2(n)
}

func parseLimit(value string) int {
	n := 0
	if value == "" {
		return -1
	}
	neg := false
	for i, r := range value {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		return -1
	}
	return n
}

// selectivity estimates the fraction of input rows a condition subtree
// passes: equality 1/V(a,r); range 0.33; AND multiplicative; OR
// inclusion-exclusion; BETWEEN 0.25; LIKE 0.05; IN 0.3; EXISTS 0.5; NOT_*
// as the complement of the positive form.
func selectivity(cond *tree.Node, stats StatsProvider) float64 {
	switch cond.Type {
	case tree.OPERATOR:
		switch cond.Value {
		case "AND":
			s := 1.0
			for _, c := range cond.Children {
				s *= selectivity(c, stats)
			}
			return s
		case "OR":
			s := 0.0
			for _, c := range cond.Children {
				ci := selectivity(c, stats)
				s = s + ci - s*ci
			}
			return s
		case "NOT":
			return 1 - selectivity(cond.Children[0], stats)
		}
		return 1.0

	case tree.COMPARISON:
		if cond.Value == "=" {
			if col, table, ok := columnOperand(cond); ok {
				s := statsOf(stats, table)
				return 1.0 / float64(distinctOf(s, col))
			}
			return 0.1
		}
		return 0.33

	case tree.BETWEEN_EXPR:
		return 0.25
	case tree.LIKE_EXPR:
		return 0.05
	case tree.IN_EXPR:
		return 0.3
	case tree.NOT_IN_EXPR:
		return 1 - 0.3
	case tree.EXISTS_EXPR:
		return 0.5
	case tree.NOT_EXISTS_EXPR:
		return 1 - 0.5
	case tree.IS_NULL_EXPR:
		return 0.1
	case tree.IS_NOT_NULL_EXPR:
		return 0.9
	default:
		return 1.0
	}
}

// columnOperand finds an equality comparison's COLUMN_REF operand (the
// other side is a literal), returning its column and table qualifier.
func columnOperand(cmp *tree.Node) (col, table string, ok bool) {
	for _, c := range cmp.Children {
		if c.Type != tree.COLUMN_REF {
			continue
		}
		if len(c.Children) == 0 {
			return columnNameOf(c), "", true
		}
		return columnNameOf(c), c.Children[0].Value, true
	}
	return "", "", false
}
