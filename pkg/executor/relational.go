package executor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/optimizer"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
)

// executeQuery walks a relational subtree bottom-up and returns its rows.
func (e *Executor) executeQuery(n *tree.Node) ([]storage.Row, error) {
	switch n.Type {
	case tree.RELATION, tree.ALIAS:
		return e.scanRelation(n)
	case tree.FILTER:
		return e.execFilter(n)
	case tree.PROJECT:
		return e.execProject(n)
	case tree.SORT:
		return e.execSort(n)
	case tree.LIMIT:
		return e.execLimit(n)
	case tree.JOIN:
		return e.execJoin(n)
	default:
		return nil, &errors.PredicateTypeError{Column: n.Type.String(), Reason: "not a relational node"}
	}
}

// scanRelation resolves n's underlying table (walking through an ALIAS
// wrapper when present — the alias name itself only matters to the
// optimizer's column-qualifier bookkeeping, never to row resolution, since
// storage.Row is keyed by bare column name), validates every row Storage
// hands back against CC with ModeRead, and overlays this transaction's own
// buffered writes onto that view.
func (e *Executor) scanRelation(n *tree.Node) ([]storage.Row, error) {
	tableNodes := n.ByType(tree.TABLE_NAME)
	if len(tableNodes) == 0 {
		return nil, &errors.PredicateTypeError{Column: n.Type.String(), Reason: "relation carries no table name"}
	}
	table := tableNodes[0].Value
	schema, err := e.store.Schema(table)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ReadBlock(table, []string{"*"}, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := e.validateRow(table, rowKeyOf(schema, row), lock.ModeRead); err != nil {
			return nil, err
		}
	}
	return e.buf.overlay(table, rows), nil
}

func (e *Executor) execFilter(n *tree.Node) ([]storage.Row, error) {
	rows, err := e.executeQuery(n.Children[0])
	if err != nil {
		return nil, err
	}
	cond := n.Children[1]
	out := make([]storage.Row, 0, len(rows))
	for _, row := range rows {
		ok, err := e.evalPredicate(row, cond)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (e *Executor) execProject(n *tree.Node) ([]storage.Row, error) {
	source := n.Children[len(n.Children)-1]
	rows, err := e.executeQuery(source)
	if err != nil {
		return nil, err
	}
	if n.Value == "*" {
		return rows, nil
	}

	cols := n.Children[:len(n.Children)-1]
	out := make([]storage.Row, len(rows))
	for i, row := range rows {
		var projected storage.Row
		for _, col := range cols {
			v, err := e.evalScalar(row, col)
			if err != nil {
				return nil, err
			}
			projected = projected.With(outputColumnName(col), v)
		}
		out[i] = projected
	}
	return out, nil
}

// outputColumnName names a projected column. COLUMN_REF/COLUMN_NAME carry
// the name directly in Value; an arithmetic expression has no column
// identity to fall back on beyond its own operator, which is what it gets.
func outputColumnName(n *tree.Node) string {
	return n.Value
}

func (e *Executor) execSort(n *tree.Node) ([]storage.Row, error) {
	rows, err := e.executeQuery(n.Children[0])
	if err != nil {
		return nil, err
	}
	items := n.Children[1:]

	out := make([]storage.Row, len(rows))
	copy(out, rows)

	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		for _, item := range items {
			col := item.Children[0]
			vi, err := e.evalScalar(out[i], col)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := e.evalScalar(out[j], col)
			if err != nil {
				sortErr = err
				return false
			}
			cmp := vi.CompareValue(vj)
			if cmp == 0 {
				continue
			}
			if strings.EqualFold(item.Value, "DESC") {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

func (e *Executor) execLimit(n *tree.Node) ([]storage.Row, error) {
	rows, err := e.executeQuery(n.Children[0])
	if err != nil {
		return nil, err
	}
	limit := parseLimit(n.Value)
	if limit < 0 || limit >= len(rows) {
		return rows, nil
	}
	return rows[:limit], nil
}

// parseLimit mirrors the optimizer cost model's own LIMIT.Value convention
// (an empty or unparseable value means "no limit", encoded as -1).
func parseLimit(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (e *Executor) execJoin(n *tree.Node) ([]storage.Row, error) {
	left, err := e.executeQuery(n.Children[0])
	if err != nil {
		return nil, err
	}
	right, err := e.executeQuery(n.Children[1])
	if err != nil {
		return nil, err
	}
	var cond *tree.Node
	if len(n.Children) == 3 {
		cond = n.Children[2]
	}

	switch n.Value {
	case optimizer.MethodHash:
		if eqCol, ok := equalityCondition(cond); ok {
			return e.hashJoin(left, right, cond, eqCol)
		}
		return e.nestedLoopJoin(left, right, cond)
	default:
		// nested_loop, index_nested_loop (the physical distinction the
		// optimizer's cost model draws between them has no row-identity
		// consequence here: both scan an already-materialized right side.
		// Store.ReadBlock's own indexableCondition fast path is what
		// actually benefits an index lookup, and it already applies
		// whenever a RELATION's predicate happens to target one) and the
		// unset "" tag (join child materialized directly from Apply, no
		// method chosen yet) all merge by the same nested loop.
		return e.nestedLoopJoin(left, right, cond)
	}
}

func (e *Executor) nestedLoopJoin(left, right []storage.Row, cond *tree.Node) ([]storage.Row, error) {
	out := make([]storage.Row, 0, len(left))
	for _, l := range left {
		for _, r := range right {
			merged := mergeRows(l, r)
			if cond == nil {
				out = append(out, merged)
				continue
			}
			ok, err := e.evalPredicate(merged, cond)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, merged)
			}
		}
	}
	return out, nil
}

// hashJoin builds a probe table over the right side keyed by eqCol's value,
// then streams the left side through it once — O(left+right) instead of
// nested_loop's O(left*right), the whole reason join_method_params exists.
func (e *Executor) hashJoin(left, right []storage.Row, cond *tree.Node, eqCol equalityCols) ([]storage.Row, error) {
	buckets := make(map[string][]storage.Row, len(right))
	for _, r := range right {
		v, ok := r.Get(eqCol.right)
		if !ok {
			continue
		}
		key := v.String()
		buckets[key] = append(buckets[key], r)
	}

	out := make([]storage.Row, 0, len(left))
	for _, l := range left {
		v, ok := l.Get(eqCol.left)
		if !ok {
			continue
		}
		for _, r := range buckets[v.String()] {
			merged := mergeRows(l, r)
			ok, err := e.evalPredicate(merged, cond)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, merged)
			}
		}
	}
	return out, nil
}

type equalityCols struct {
	left, right string
}

// equalityCondition recognizes cond as a single COMPARISON("=", a, b) (or an
// AND whose first conjunct is one), the only shape a hash join can probe on.
// Anything else — a range predicate, an OR, a multi-column condition — falls
// back to nestedLoopJoin.
func equalityCondition(cond *tree.Node) (equalityCols, bool) {
	if cond == nil {
		return equalityCols{}, false
	}
	c := cond
	if c.Type == tree.OPERATOR && c.Value == "AND" && len(c.Children) > 0 {
		c = c.Children[0]
	}
	if c.Type != tree.COMPARISON || c.Value != "=" {
		return equalityCols{}, false
	}
	if c.Children[0].Type != tree.COLUMN_REF || c.Children[1].Type != tree.COLUMN_REF {
		return equalityCols{}, false
	}
	return equalityCols{left: c.Children[0].Value, right: c.Children[1].Value}, true
}

// mergeRows concatenates left's and right's fields; a name collision keeps
// left's value. storage.Row carries no table qualifier per field, so a join
// cannot do better than this without changing Row's shape — out of scope
// (see the COLUMN_REF qualifier note on evalScalar).
func mergeRows(left, right storage.Row) storage.Row {
	out := left
	for _, f := range right {
		if _, ok := out.Get(f.Key); ok {
			continue
		}
		v, _ := right.Get(f.Key)
		out = out.With(f.Key, v)
	}
	return out
}
