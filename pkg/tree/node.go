// Package tree implements the algebraic tree that carries a query's logical
// and physical plan, shared by the SQL front end, the optimizer and the
// executor.
package tree

import (
	"fmt"
	"sync/atomic"
)

// NodeType tags every node per the QueryTree node grammar: atoms, column/
// table references, expressions, boolean logic, relational operators, DML
// and DDL statements, and the two transactional markers.
type NodeType int

const (
	// Atoms
	IDENTIFIER NodeType = iota
	LITERAL_NUMBER
	LITERAL_STRING
	LITERAL_BOOLEAN
	LITERAL_NULL

	// References
	COLUMN_NAME
	TABLE_NAME
	COLUMN_REF

	// Expressions
	COMPARISON
	ARITH_EXPR
	IN_EXPR
	NOT_IN_EXPR
	EXISTS_EXPR
	NOT_EXISTS_EXPR
	BETWEEN_EXPR
	IS_NULL_EXPR
	IS_NOT_NULL_EXPR
	LIKE_EXPR

	// Logic
	OPERATOR

	// Relational
	PROJECT
	FILTER
	SORT
	ORDER_ITEM
	LIMIT
	JOIN
	RELATION
	ALIAS
	LIST

	// DML
	UPDATE_QUERY
	INSERT_QUERY
	DELETE_QUERY
	ASSIGNMENT

	// Transactional
	BEGIN_TRANSACTION
	COMMIT

	// DDL
	CREATE_TABLE
	DROP_TABLE
	COLUMN_DEF
)

var nodeTypeNames = map[NodeType]string{
	IDENTIFIER:        "IDENTIFIER",
	LITERAL_NUMBER:    "LITERAL_NUMBER",
	LITERAL_STRING:    "LITERAL_STRING",
	LITERAL_BOOLEAN:   "LITERAL_BOOLEAN",
	LITERAL_NULL:      "LITERAL_NULL",
	COLUMN_NAME:       "COLUMN_NAME",
	TABLE_NAME:        "TABLE_NAME",
	COLUMN_REF:        "COLUMN_REF",
	COMPARISON:        "COMPARISON",
	ARITH_EXPR:        "ARITH_EXPR",
	IN_EXPR:           "IN_EXPR",
	NOT_IN_EXPR:       "NOT_IN_EXPR",
	EXISTS_EXPR:       "EXISTS_EXPR",
	NOT_EXISTS_EXPR:   "NOT_EXISTS_EXPR",
	BETWEEN_EXPR:      "BETWEEN_EXPR",
	IS_NULL_EXPR:      "IS_NULL_EXPR",
	IS_NOT_NULL_EXPR:  "IS_NOT_NULL_EXPR",
	LIKE_EXPR:         "LIKE_EXPR",
	OPERATOR:          "OPERATOR",
	PROJECT:           "PROJECT",
	FILTER:            "FILTER",
	SORT:              "SORT",
	ORDER_ITEM:        "ORDER_ITEM",
	LIMIT:             "LIMIT",
	JOIN:              "JOIN",
	RELATION:          "RELATION",
	ALIAS:             "ALIAS",
	LIST:              "LIST",
	UPDATE_QUERY:      "UPDATE_QUERY",
	INSERT_QUERY:      "INSERT_QUERY",
	DELETE_QUERY:      "DELETE_QUERY",
	ASSIGNMENT:        "ASSIGNMENT",
	BEGIN_TRANSACTION: "BEGIN_TRANSACTION",
	COMMIT:            "COMMIT",
	CREATE_TABLE:      "CREATE_TABLE",
	DROP_TABLE:        "DROP_TABLE",
	COLUMN_DEF:        "COLUMN_DEF",
}

func (t NodeType) String() string {
	if s, ok := nodeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

var idCounter uint64

// NextID hands out a fresh, process-wide monotonic node ID. It is exported
// so the optimizer and executor can mint IDs for synthesized nodes (e.g. a
// cascaded FILTER) without going through a constructor.
func NextID() int64 {
	return int64(atomic.AddUint64(&idCounter, 1))
}

// Node is the single node type for both the logical and physical plan.
// Value carries the atom's payload (a column name, a literal, an operator
// symbol such as "AND"/">="); relational nodes leave it empty except where
// the grammar gives it meaning (PROJECT's "*", ALIAS's bound name).
type Node struct {
	Type     NodeType
	Value    string
	Children []*Node
	ID       int64
}

// New constructs a node with a fresh ID.
func New(t NodeType, value string, children ...*Node) *Node {
	return &Node{Type: t, Value: value, Children: children, ID: NextID()}
}

// NewWithID constructs a node carrying a caller-supplied ID, used by Clone
// when preserving IDs and by the optimizer when replaying a parameter set
// that addresses nodes by ID.
func NewWithID(t NodeType, value string, id int64, children ...*Node) *Node {
	return &Node{Type: t, Value: value, Children: children, ID: id}
}

// Clone deep-copies the subtree. When preserveIDs is false every copied node
// gets a fresh ID (used when the optimizer forks a candidate plan for
// independent mutation); when true the original IDs carry over (used when
// re-validating or re-serializing the same logical plan).
func (n *Node) Clone(preserveIDs bool) *Node {
	if n == nil {
		return nil
	}
	children := make([]*Node, len(n.Children))
	for i, c := range n.Children {
		children[i] = c.Clone(preserveIDs)
	}
	id := n.ID
	if !preserveIDs {
		id = NextID()
	}
	return &Node{Type: n.Type, Value: n.Value, Children: children, ID: id}
}

// PreOrder visits n and every descendant, parent before children.
func (n *Node) PreOrder(visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		c.PreOrder(visit)
	}
}

// PostOrder visits n and every descendant, children before parent.
func (n *Node) PostOrder(visit func(*Node)) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		c.PostOrder(visit)
	}
	visit(n)
}

// ByType collects every node of the given type in pre-order.
func (n *Node) ByType(t NodeType) []*Node {
	var out []*Node
	n.PreOrder(func(cur *Node) {
		if cur.Type == t {
			out = append(out, cur)
		}
	})
	return out
}

// FindByID returns the node with the given ID, or nil if none is found.
func (n *Node) FindByID(id int64) *Node {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := c.FindByID(id); found != nil {
			return found
		}
	}
	return nil
}

// Replace rewrites the subtree rooted at targetID to replacement, returning
// a new tree (the receiver is not mutated). It returns nil if targetID is
// not present.
func (n *Node) Replace(targetID int64, replacement *Node) *Node {
	if n == nil {
		return nil
	}
	if n.ID == targetID {
		return replacement
	}
	children := make([]*Node, len(n.Children))
	changed := false
	for i, c := range n.Children {
		nc := c.Replace(targetID, replacement)
		if nc != c {
			changed = true
		}
		children[i] = nc
	}
	if !changed {
		return n
	}
	return &Node{Type: n.Type, Value: n.Value, Children: children, ID: n.ID}
}
