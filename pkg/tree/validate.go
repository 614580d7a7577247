package tree

import "fmt"

// ValidationError describes exactly which node and arity rule failed.
type ValidationError struct {
	NodeID   int64
	NodeType NodeType
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("node %d (%s): %s", e.NodeID, e.NodeType, e.Reason)
}

// Validate is a total function from tree to Ok|Err(description): it never
// panics on a malformed tree, it reports the first arity violation found in
// pre-order. The optimizer and executor trust any tree that passes this.
func Validate(n *Node) error {
	if n == nil {
		return &ValidationError{Reason: "nil tree"}
	}
	var err error
	n.PreOrder(func(cur *Node) {
		if err != nil {
			return
		}
		err = validateNode(cur)
	})
	return err
}

func validateNode(n *Node) error {
	arity := len(n.Children)
	fail := func(reason string) error {
		return &ValidationError{NodeID: n.ID, NodeType: n.Type, Reason: reason}
	}

	switch n.Type {
	case IDENTIFIER, LITERAL_NUMBER, LITERAL_STRING, LITERAL_BOOLEAN, LITERAL_NULL,
		COLUMN_NAME, TABLE_NAME:
		if arity != 0 {
			return fail("atom must have no children")
		}

	case COLUMN_REF:
		if arity > 1 {
			return fail("COLUMN_REF takes at most one child (the table qualifier)")
		}

	case COMPARISON, ARITH_EXPR:
		if arity != 2 {
			return fail("binary expression requires exactly two children")
		}

	case IN_EXPR, NOT_IN_EXPR:
		if arity < 2 {
			return fail("IN expression requires a probe and at least one candidate")
		}

	case EXISTS_EXPR, NOT_EXISTS_EXPR, IS_NULL_EXPR, IS_NOT_NULL_EXPR:
		if arity != 1 {
			return fail("unary expression requires exactly one child")
		}

	case BETWEEN_EXPR:
		if arity != 3 {
			return fail("BETWEEN requires exactly three children: probe, low, high")
		}

	case LIKE_EXPR:
		if arity != 2 {
			return fail("LIKE requires exactly two children: probe, pattern")
		}

	case OPERATOR:
		switch n.Value {
		case "NOT":
			if arity != 1 {
				return fail(`OPERATOR("NOT") requires exactly one child`)
			}
		case "AND", "OR":
			if arity < 2 {
				return fail(`OPERATOR("AND"|"OR") requires at least two children`)
			}
		default:
			return fail(fmt.Sprintf("unknown operator %q", n.Value))
		}

	case PROJECT:
		if n.Value == "*" && arity != 1 {
			return fail(`PROJECT("*") must have exactly one child, the source`)
		}
		if arity < 1 {
			return fail("PROJECT requires at least one child, the source")
		}

	case FILTER:
		if arity != 2 {
			return fail("FILTER requires exactly two children: source, condition")
		}

	case SORT:
		if arity < 2 {
			return fail("SORT requires a source and at least one ORDER_ITEM")
		}
		if n.Children[0].Type == ORDER_ITEM {
			return fail("SORT's first child must be the source, not an ORDER_ITEM")
		}

	case ORDER_ITEM:
		if arity != 1 {
			return fail("ORDER_ITEM requires exactly one child, the column reference")
		}

	case LIMIT:
		if arity != 1 {
			return fail("LIMIT requires exactly one child, the source")
		}

	case JOIN:
		if arity != 2 && arity != 3 {
			return fail("JOIN requires two relations and, for non-NATURAL joins, a condition")
		}

	case RELATION, ALIAS:
		if arity != 1 {
			return fail(fmt.Sprintf("%s requires exactly one child", n.Type))
		}

	case LIST:
		// arbitrary arity (argument lists, column lists)

	case ASSIGNMENT:
		if arity != 2 {
			return fail("ASSIGNMENT requires exactly two children: target column, value")
		}

	case UPDATE_QUERY:
		if arity < 2 {
			return fail("UPDATE_QUERY requires a table and at least one ASSIGNMENT")
		}

	case INSERT_QUERY:
		if arity < 2 {
			return fail("INSERT_QUERY requires a table and at least one value LIST")
		}

	case DELETE_QUERY:
		if arity < 1 {
			return fail("DELETE_QUERY requires at least a table")
		}

	case BEGIN_TRANSACTION, COMMIT:
		if arity != 0 {
			return fail("transactional marker must have no children")
		}

	case CREATE_TABLE:
		if arity < 2 {
			return fail("CREATE_TABLE requires a table name and at least one COLUMN_DEF")
		}

	case DROP_TABLE:
		if arity != 1 {
			return fail("DROP_TABLE requires exactly one child, the table name")
		}

	case COLUMN_DEF:
		if arity != 0 {
			return fail("COLUMN_DEF carries its type in Value and has no children")
		}

	default:
		return fail("unrecognized node type")
	}

	return nil
}
