package sqlfront

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/tree"
)

func mustParse(t *testing.T, src string) *tree.Node {
	t.Helper()
	n, err := Parse(src)
	require.NoError(t, err)
	require.NoError(t, tree.Validate(n))
	return n
}

func TestParse_CreateTable(t *testing.T) {
	n := mustParse(t, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, name VARCHAR(32), balance INTEGER)`)
	require.Equal(t, tree.CREATE_TABLE, n.Type)
	require.Equal(t, "accounts", n.Children[0].Value)
	require.Len(t, n.Children, 4)
	require.Equal(t, "id:INT:PK", n.Children[1].Value)
	require.Equal(t, "name:VARCHAR", n.Children[2].Value)
	require.Equal(t, "balance:INT", n.Children[3].Value)
}

func TestParse_CreateTableWithForeignKey(t *testing.T) {
	n := mustParse(t, `CREATE TABLE orders (id INTEGER PRIMARY KEY, account_id INTEGER, FOREIGN KEY (account_id) REFERENCES accounts(id))`)
	require.Equal(t, tree.CREATE_TABLE, n.Type)
	require.Len(t, n.Children, 3)
}

func TestParse_DropTableCascade(t *testing.T) {
	n := mustParse(t, `DROP TABLE accounts CASCADE`)
	require.Equal(t, tree.DROP_TABLE, n.Type)
	require.Equal(t, "CASCADE", n.Value)
	require.Equal(t, "accounts", n.Children[0].Value)
}

func TestParse_InsertWithColumnList(t *testing.T) {
	n := mustParse(t, `INSERT INTO accounts (id, name, balance) VALUES (1, 'alice', 100)`)
	require.Equal(t, tree.INSERT_QUERY, n.Type)
	require.Equal(t, "accounts", n.Children[0].Value)
	require.Equal(t, tree.LIST, n.Children[1].Type)
	require.Len(t, n.Children[1].Children, 3)
	require.Equal(t, tree.LIST, n.Children[2].Type)
	require.Equal(t, "1", n.Children[2].Children[0].Value)
	require.Equal(t, "alice", n.Children[2].Children[1].Value)
}

func TestParse_InsertMultipleRows(t *testing.T) {
	n := mustParse(t, `INSERT INTO accounts VALUES (1, 'alice', 100), (2, 'bob', 50)`)
	require.Equal(t, tree.INSERT_QUERY, n.Type)
	require.Len(t, n.Children, 3)
}

func TestParse_UpdateWithWhere(t *testing.T) {
	n := mustParse(t, `UPDATE accounts SET balance = balance - 10 WHERE id = 1`)
	require.Equal(t, tree.UPDATE_QUERY, n.Type)
	require.Equal(t, tree.ASSIGNMENT, n.Children[1].Type)
	require.Equal(t, tree.COMPARISON, n.Children[2].Type)
}

func TestParse_DeleteWithWhere(t *testing.T) {
	n := mustParse(t, `DELETE FROM accounts WHERE balance < 0`)
	require.Equal(t, tree.DELETE_QUERY, n.Type)
	require.Equal(t, "accounts", n.Children[0].Value)
	require.Equal(t, tree.COMPARISON, n.Children[1].Type)
}

func TestParse_SelectStar(t *testing.T) {
	n := mustParse(t, `SELECT * FROM accounts`)
	require.Equal(t, tree.PROJECT, n.Type)
	require.Equal(t, "*", n.Value)
	require.Equal(t, tree.RELATION, n.Children[0].Type)
}

func TestParse_SelectColumnsWhereOrderLimit(t *testing.T) {
	n := mustParse(t, `SELECT id, name FROM accounts WHERE balance > 10 ORDER BY name DESC LIMIT 5`)
	require.Equal(t, tree.PROJECT, n.Type)
	require.Len(t, n.Children, 3) // id, name, source
	limit := n.Children[2]
	require.Equal(t, tree.LIMIT, limit.Type)
	require.Equal(t, "5", limit.Value)
	sort := limit.Children[0]
	require.Equal(t, tree.SORT, sort.Type)
	require.Equal(t, "DESC", sort.Children[1].Value)
	filter := sort.Children[0]
	require.Equal(t, tree.FILTER, filter.Type)
}

func TestParse_SelectInnerJoin(t *testing.T) {
	n := mustParse(t, `SELECT * FROM orders AS o INNER JOIN accounts AS a ON o.account_id = a.id`)
	join := n.Children[0]
	require.Equal(t, tree.JOIN, join.Type)
	require.Len(t, join.Children, 3)
	require.Equal(t, tree.ALIAS, join.Children[0].Type)
	require.Equal(t, "o", join.Children[0].Value)
}

func TestParse_SelectNaturalJoin(t *testing.T) {
	n := mustParse(t, `SELECT * FROM orders NATURAL JOIN accounts`)
	join := n.Children[0]
	require.Equal(t, tree.JOIN, join.Type)
	require.Len(t, join.Children, 2)
}

func TestParse_SelectCommaJoin(t *testing.T) {
	n := mustParse(t, `SELECT * FROM orders, accounts`)
	join := n.Children[0]
	require.Equal(t, tree.JOIN, join.Type)
	require.Len(t, join.Children, 2)
}

func TestParse_WherePredicateForms(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want tree.NodeType
	}{
		{"in", `SELECT * FROM t WHERE id IN (1, 2, 3)`, tree.IN_EXPR},
		{"not_in", `SELECT * FROM t WHERE id NOT IN (1, 2, 3)`, tree.NOT_IN_EXPR},
		{"between", `SELECT * FROM t WHERE id BETWEEN 1 AND 10`, tree.BETWEEN_EXPR},
		{"is_null", `SELECT * FROM t WHERE id IS NULL`, tree.IS_NULL_EXPR},
		{"is_not_null", `SELECT * FROM t WHERE id IS NOT NULL`, tree.IS_NOT_NULL_EXPR},
		{"like", `SELECT * FROM t WHERE name LIKE 'a%'`, tree.LIKE_EXPR},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := mustParse(t, tc.sql)
			cond := n.Children[0].Children[1]
			require.Equal(t, tc.want, cond.Type)
		})
	}
}

func TestParse_ExistsSubquery(t *testing.T) {
	n := mustParse(t, `SELECT * FROM accounts WHERE EXISTS (SELECT * FROM orders)`)
	cond := n.Children[0].Children[1]
	require.Equal(t, tree.EXISTS_EXPR, cond.Type)
}

func TestParse_NotExistsProducesNegatedOperator(t *testing.T) {
	n := mustParse(t, `SELECT * FROM accounts WHERE NOT EXISTS (SELECT * FROM orders)`)
	cond := n.Children[0].Children[1]
	require.Equal(t, tree.OPERATOR, cond.Type)
	require.Equal(t, "NOT", cond.Value)
	require.Equal(t, tree.EXISTS_EXPR, cond.Children[0].Type)
}

func TestParse_AndOrNotPrecedence(t *testing.T) {
	n := mustParse(t, `SELECT * FROM t WHERE a = 1 AND b = 2 OR NOT c = 3`)
	cond := n.Children[0].Children[1]
	require.Equal(t, tree.OPERATOR, cond.Type)
	require.Equal(t, "OR", cond.Value)
	require.Equal(t, "AND", cond.Children[0].Value)
	require.Equal(t, "NOT", cond.Children[1].Value)
}

func TestParse_ParenthesizedCondition(t *testing.T) {
	n := mustParse(t, `SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3`)
	cond := n.Children[0].Children[1]
	require.Equal(t, "AND", cond.Value)
	require.Equal(t, "OR", cond.Children[0].Value)
}

func TestParse_ParenthesizedArithInComparison(t *testing.T) {
	n := mustParse(t, `SELECT * FROM t WHERE (a + b) > 5`)
	cond := n.Children[0].Children[1]
	require.Equal(t, tree.COMPARISON, cond.Type)
	require.Equal(t, tree.ARITH_EXPR, cond.Children[0].Type)
}

func TestParse_BeginTransactionAndCommit(t *testing.T) {
	begin := mustParse(t, `BEGIN TRANSACTION`)
	require.Equal(t, tree.BEGIN_TRANSACTION, begin.Type)

	commit := mustParse(t, `COMMIT`)
	require.Equal(t, tree.COMMIT, commit.Type)
}

func TestParse_TrailingSemicolonOptional(t *testing.T) {
	withSemi := mustParse(t, `COMMIT;`)
	require.Equal(t, tree.COMMIT, withSemi.Type)
}

func TestParse_RejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`COMMIT EXTRA`)
	require.Error(t, err)
}

func TestParse_RejectsUnterminatedString(t *testing.T) {
	_, err := Parse(`INSERT INTO t VALUES ('unterminated)`)
	require.Error(t, err)
}

func TestParse_RejectsMalformedColumnDef(t *testing.T) {
	_, err := Parse(`CREATE TABLE t (id NOTATYPE)`)
	require.Error(t, err)
}
