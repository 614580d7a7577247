package tree_test

import (
	"testing"

	"github.com/bobboyms/reldb/pkg/tree"
)

func TestCloneFreshIDsDiffer(t *testing.T) {
	src := tree.New(tree.FILTER,
		"",
		tree.New(tree.TABLE_NAME, "users"),
		tree.New(tree.COMPARISON, "=",
			tree.New(tree.COLUMN_NAME, "id"),
			tree.New(tree.LITERAL_NUMBER, "42"),
		),
	)

	clone := src.Clone(false)
	if clone.ID == src.ID {
		t.Fatalf("expected fresh root ID, got same ID %d", clone.ID)
	}
	if clone.Children[0].ID == src.Children[0].ID {
		t.Fatalf("expected fresh child ID, got same ID %d", clone.Children[0].ID)
	}
	if clone.Type != src.Type || len(clone.Children) != len(src.Children) {
		t.Fatalf("clone diverged in shape from source")
	}
}

func TestClonePreservesIDs(t *testing.T) {
	src := tree.New(tree.PROJECT, "*", tree.New(tree.TABLE_NAME, "users"))
	clone := src.Clone(true)
	if clone.ID != src.ID {
		t.Fatalf("expected preserved root ID %d, got %d", src.ID, clone.ID)
	}
	if clone.Children[0].ID != src.Children[0].ID {
		t.Fatalf("expected preserved child ID %d, got %d", src.Children[0].ID, clone.Children[0].ID)
	}
}

func TestFindByIDAndReplace(t *testing.T) {
	leaf := tree.New(tree.TABLE_NAME, "users")
	root := tree.New(tree.PROJECT, "*", leaf)

	found := root.FindByID(leaf.ID)
	if found == nil || found.Value != "users" {
		t.Fatalf("expected to find leaf node by ID")
	}

	replacement := tree.New(tree.TABLE_NAME, "profiles")
	replaced := root.Replace(leaf.ID, replacement)
	if replaced.Children[0].Value != "profiles" {
		t.Fatalf("expected replaced tree to carry the new table name, got %q", replaced.Children[0].Value)
	}
	if root.Children[0].Value != "users" {
		t.Fatalf("Replace must not mutate the receiver in place")
	}
}

func TestByType(t *testing.T) {
	root := tree.New(tree.FILTER, "",
		tree.New(tree.TABLE_NAME, "users"),
		tree.New(tree.OPERATOR, "AND",
			tree.New(tree.COMPARISON, ">", tree.New(tree.COLUMN_NAME, "age"), tree.New(tree.LITERAL_NUMBER, "18")),
			tree.New(tree.COMPARISON, "<", tree.New(tree.COLUMN_NAME, "age"), tree.New(tree.LITERAL_NUMBER, "65")),
		),
	)

	comparisons := root.ByType(tree.COMPARISON)
	if len(comparisons) != 2 {
		t.Fatalf("expected 2 COMPARISON nodes, got %d", len(comparisons))
	}
}

func TestValidateRejectsBadArity(t *testing.T) {
	bad := tree.New(tree.FILTER, "", tree.New(tree.TABLE_NAME, "users"))
	if err := tree.Validate(bad); err == nil {
		t.Fatalf("expected FILTER with one child to fail validation")
	}

	badAnd := tree.New(tree.OPERATOR, "AND", tree.New(tree.LITERAL_BOOLEAN, "true"))
	if err := tree.Validate(badAnd); err == nil {
		t.Fatalf(`expected OPERATOR("AND") with one child to fail validation`)
	}

	badNot := tree.New(tree.OPERATOR, "NOT",
		tree.New(tree.LITERAL_BOOLEAN, "true"),
		tree.New(tree.LITERAL_BOOLEAN, "false"),
	)
	if err := tree.Validate(badNot); err == nil {
		t.Fatalf(`expected OPERATOR("NOT") with two children to fail validation`)
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	plan := tree.New(tree.PROJECT, "*",
		tree.New(tree.FILTER, "",
			tree.New(tree.RELATION, "", tree.New(tree.TABLE_NAME, "users")),
			tree.New(tree.COMPARISON, ">", tree.New(tree.COLUMN_NAME, "age"), tree.New(tree.LITERAL_NUMBER, "18")),
		),
	)
	if err := tree.Validate(plan); err != nil {
		t.Fatalf("expected well-formed plan to validate, got: %v", err)
	}
}
