// Package executor walks an algebraic tree plan (the optimizer's output, or
// a plan straight from the SQL front end when optimization is skipped) and
// produces rows or an affected-row count. It never writes to Block Storage
// directly: every INSERT/UPDATE/DELETE lands in a per-transaction Buffer,
// and the Transaction Coordinator decides what to flush at commit.
package executor

import (
	"fmt"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
)

// Store is the slice of Block Storage's Engine the executor calls into. It
// is satisfied by *storage.Engine without an explicit assertion, the same
// duck-typed-interface pattern the optimizer uses for StatsProvider.
type Store interface {
	ReadBlock(table string, columns []string, conditions []storage.Condition) ([]storage.Row, error)
	Schema(table string) (storage.Schema, error)
	CreateTable(name string, schema storage.Schema) error
	DropTable(name string, cascade bool) error
}

// CCManager is the slice of the Concurrency Control Manager the executor
// validates every row touch against. Satisfied by *lock.Manager.
type CCManager interface {
	Validate(tid uint64, table, rowKey string, mode lock.Mode) (lock.Verdict, error)
	CurrentVariant() lock.Variant
}

// WaitError signals that the lock manager wants this operation retried
// rather than aborted. Unlike a Die verdict (which surfaces as a
// *errors.ProtocolError, per the package's abort-on-Protocol-kind
// convention), Wait leaves the transaction alive; the Coordinator re-issues
// the same operation once the conflicting transaction clears.
type WaitError struct {
	Table, RowKey string
	Mode          lock.Mode
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("validate(%s, %s) => wait", e.Table, e.RowKey)
}

// Result is what Run hands back: rows for a query plan, an affected count
// for DML, neither for DDL.
type Result struct {
	Rows     []storage.Row
	Affected int
}

// Executor runs one transaction's statements against Store, buffering every
// write and validating every row touch through CC before it is recorded.
type Executor struct {
	store Store
	cc    CCManager
	tid   uint64
	buf   *Buffer
}

// New opens an executor bound to tid, the transaction ID the Coordinator
// obtained from CCManager.Begin.
func New(store Store, cc CCManager, tid uint64) *Executor {
	return &Executor{store: store, cc: cc, tid: tid, buf: NewBuffer()}
}

// Buffer exposes the executor's accumulated writes so the Coordinator can
// collapse and flush them at commit.
func (e *Executor) Buffer() *Buffer { return e.buf }

// Run dispatches root to the relational walk, DML or DDL depending on its
// type, and is the sole entry point callers need.
func (e *Executor) Run(root *tree.Node) (Result, error) {
	if root == nil {
		return Result{}, fmt.Errorf("executor: nil plan")
	}
	switch root.Type {
	case tree.RELATION, tree.ALIAS, tree.PROJECT, tree.FILTER, tree.SORT, tree.LIMIT, tree.JOIN:
		rows, err := e.executeQuery(root)
		return Result{Rows: rows}, err
	case tree.INSERT_QUERY:
		n, err := e.execInsert(root)
		return Result{Affected: n}, err
	case tree.UPDATE_QUERY:
		n, err := e.execUpdate(root)
		return Result{Affected: n}, err
	case tree.DELETE_QUERY:
		n, err := e.execDelete(root)
		return Result{Affected: n}, err
	case tree.CREATE_TABLE:
		return Result{}, e.execCreateTable(root)
	case tree.DROP_TABLE:
		return Result{}, e.execDropTable(root)
	case tree.BEGIN_TRANSACTION, tree.COMMIT:
		// transactional markers are the Coordinator's concern; a bare
		// executor sees one only if a caller ran a plan straight from the
		// parser without routing it through the Coordinator first.
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("executor: unsupported root node type %s", root.Type)
	}
}

// validateRow runs CC's validate(tid, table, row_key, mode) and turns its
// verdict into the caller's next step: proceed on Grant, a *WaitError on
// Wait, a *errors.ProtocolError-wrapping abort on Die.
func (e *Executor) validateRow(table, rowKey string, mode lock.Mode) error {
	verdict, err := e.cc.Validate(e.tid, table, rowKey, mode)
	if err != nil {
		return err
	}
	switch verdict {
	case lock.Grant:
		return nil
	case lock.Wait:
		return &WaitError{Table: table, RowKey: rowKey, Mode: mode}
	default:
		return dieError(e.cc, table, rowKey, mode)
	}
}
