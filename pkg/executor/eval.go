package executor

import (
	"strconv"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
	"github.com/bobboyms/reldb/pkg/types"
)

// evalScalar evaluates an atom, column reference or arithmetic expression
// against row. COLUMN_REF's optional table-qualifier child is ignored:
// storage.Row resolves by bare column name only, so a join's merged row is
// the only place a qualifier could matter, and by then the columns already
// collided or they didn't (see mergeRows' merge rule).
func (e *Executor) evalScalar(row storage.Row, n *tree.Node) (types.Value, error) {
	switch n.Type {
	case tree.LITERAL_NUMBER:
		if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
			return types.Int(i), nil
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return types.Value{}, &errors.PredicateTypeError{Column: n.Value, Reason: "not a number literal"}
		}
		return types.Float(f), nil

	case tree.LITERAL_STRING:
		return types.String(n.Value), nil

	case tree.LITERAL_BOOLEAN:
		return types.Bool(n.Value == "true"), nil

	case tree.LITERAL_NULL:
		return types.Null(), nil

	case tree.COLUMN_REF:
		v, ok := row.Get(n.Value)
		if !ok {
			return types.Null(), nil
		}
		return v, nil

	case tree.ARITH_EXPR:
		left, err := e.evalScalar(row, n.Children[0])
		if err != nil {
			return types.Value{}, err
		}
		right, err := e.evalScalar(row, n.Children[1])
		if err != nil {
			return types.Value{}, err
		}
		return evalArith(n.Value, left, right)

	default:
		return types.Value{}, &errors.PredicateTypeError{Column: n.Type.String(), Reason: "not a scalar expression"}
	}
}

func evalArith(op string, left, right types.Value) (types.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return types.Value{}, &errors.PredicateTypeError{Column: op, Reason: "arithmetic requires numeric operands"}
	}
	a, b := asFloat(left), asFloat(right)
	var result float64
	switch op {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "*":
		result = a * b
	case "/":
		if b == 0 {
			return types.Value{}, &errors.PredicateTypeError{Column: op, Reason: "division by zero"}
		}
		result = a / b
	default:
		return types.Value{}, &errors.PredicateTypeError{Column: op, Reason: "unknown arithmetic operator"}
	}
	if left.Kind == types.KindInt && right.Kind == types.KindInt && op != "/" {
		return types.Int(int64(result)), nil
	}
	return types.Float(result), nil
}

func asFloat(v types.Value) float64 {
	if v.Kind == types.KindInt {
		return float64(v.I)
	}
	return v.F
}

// evalPredicate evaluates a boolean expression against row.
func (e *Executor) evalPredicate(row storage.Row, n *tree.Node) (bool, error) {
	switch n.Type {
	case tree.OPERATOR:
		switch n.Value {
		case "NOT":
			v, err := e.evalPredicate(row, n.Children[0])
			return !v, err
		case "AND":
			for _, c := range n.Children {
				v, err := e.evalPredicate(row, c)
				if err != nil || !v {
					return false, err
				}
			}
			return true, nil
		case "OR":
			for _, c := range n.Children {
				v, err := e.evalPredicate(row, c)
				if err != nil {
					return false, err
				}
				if v {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, &errors.PredicateTypeError{Column: n.Value, Reason: "unknown boolean operator"}
		}

	case tree.COMPARISON:
		left, err := e.evalScalar(row, n.Children[0])
		if err != nil {
			return false, err
		}
		right, err := e.evalScalar(row, n.Children[1])
		if err != nil {
			return false, err
		}
		return compareValues(n.Value, left, right)

	case tree.LIKE_EXPR:
		left, err := e.evalScalar(row, n.Children[0])
		if err != nil {
			return false, err
		}
		pattern, err := e.evalScalar(row, n.Children[1])
		if err != nil {
			return false, err
		}
		return left.Like(pattern.String()), nil

	case tree.BETWEEN_EXPR:
		probe, err := e.evalScalar(row, n.Children[0])
		if err != nil {
			return false, err
		}
		low, err := e.evalScalar(row, n.Children[1])
		if err != nil {
			return false, err
		}
		high, err := e.evalScalar(row, n.Children[2])
		if err != nil {
			return false, err
		}
		return probe.CompareValue(low) >= 0 && probe.CompareValue(high) <= 0, nil

	case tree.IN_EXPR, tree.NOT_IN_EXPR:
		probe, err := e.evalScalar(row, n.Children[0])
		if err != nil {
			return false, err
		}
		found := false
		for _, c := range n.Children[1:] {
			v, err := e.evalScalar(row, c)
			if err != nil {
				return false, err
			}
			if probe.Equal(v) {
				found = true
				break
			}
		}
		if n.Type == tree.NOT_IN_EXPR {
			return !found, nil
		}
		return found, nil

	case tree.IS_NULL_EXPR:
		v, err := e.evalScalar(row, n.Children[0])
		return v.IsNull(), err

	case tree.IS_NOT_NULL_EXPR:
		v, err := e.evalScalar(row, n.Children[0])
		return !v.IsNull(), err

	case tree.EXISTS_EXPR, tree.NOT_EXISTS_EXPR:
		// Subquery bodies are executed uncorrelated: the body is planned and
		// run once, independent of row, not re-run per outer row with row's
		// values substituted in. Correlated EXISTS is out of scope — there is
		// no binding mechanism in the tree grammar for an outer row to reach
		// a nested relational subtree.
		rows, err := e.executeQuery(n.Children[0])
		if err != nil {
			return false, err
		}
		exists := len(rows) > 0
		if n.Type == tree.NOT_EXISTS_EXPR {
			return !exists, nil
		}
		return exists, nil

	default:
		return false, &errors.PredicateTypeError{Column: n.Type.String(), Reason: "not a boolean expression"}
	}
}

func compareValues(op string, left, right types.Value) (bool, error) {
	switch op {
	case "=":
		return left.Equal(right), nil
	case "!=", "<>":
		return !left.Equal(right), nil
	case "<":
		return left.CompareValue(right) < 0, nil
	case "<=":
		return left.CompareValue(right) <= 0, nil
	case ">":
		return left.CompareValue(right) > 0, nil
	case ">=":
		return left.CompareValue(right) >= 0, nil
	default:
		return false, &errors.PredicateTypeError{Column: op, Reason: "unknown comparison operator"}
	}
}
