package txn

import (
	"sort"
	"strings"

	"github.com/bobboyms/reldb/pkg/executor"
	"github.com/bobboyms/reldb/pkg/storage"
)

// tableBatch is one table's flush-ready writes: inserts and deletes need no
// further grouping, but updates are collapsed by row identity first.
type tableBatch struct {
	inserts []storage.Row
	updates []storage.RowPair
	deletes []storage.Row
}

// groupAndCollapse implements the commit-time grouping step: ops are
// partitioned by (table, kind), and each table's UPDATE entries collapse to
// one (first_old, last_new) pair per row identity, dropping any pair that
// nets to no change.
func (c *Coordinator) groupAndCollapse(ops []executor.BufferedOperation) (map[string]*tableBatch, error) {
	byTable := make(map[string][]executor.BufferedOperation)
	order := []string{}
	for _, op := range ops {
		if _, ok := byTable[op.Table]; !ok {
			order = append(order, op.Table)
		}
		byTable[op.Table] = append(byTable[op.Table], op)
	}

	batches := make(map[string]*tableBatch, len(order))
	for _, table := range order {
		schema, err := c.store.Schema(table)
		if err != nil {
			return nil, err
		}
		batch := &tableBatch{}
		for _, op := range byTable[table] {
			switch op.Kind {
			case executor.OpInsert:
				batch.inserts = append(batch.inserts, op.New)
			case executor.OpDelete:
				batch.deletes = append(batch.deletes, op.Old)
			}
		}
		batch.updates = collapseUpdates(schema, byTable[table])
		batches[table] = batch
	}
	return batches, nil
}

// collapseUpdates keeps the first-seen old value and the last-seen new
// value per row identity (primary key preferred, else a content hash of
// the old row), in first-seen order, and drops any pair whose old and new
// rows are now equal.
func collapseUpdates(schema storage.Schema, ops []executor.BufferedOperation) []storage.RowPair {
	type accum struct {
		first, last storage.Row
	}
	byIdentity := make(map[string]*accum)
	var order []string

	for _, op := range ops {
		if op.Kind != executor.OpUpdate {
			continue
		}
		key := rowIdentity(schema, op.Old)
		if acc, ok := byIdentity[key]; ok {
			acc.last = op.New
			continue
		}
		byIdentity[key] = &accum{first: op.Old, last: op.New}
		order = append(order, key)
	}

	pairs := make([]storage.RowPair, 0, len(order))
	for _, key := range order {
		acc := byIdentity[key]
		if acc.first.Equal(acc.last) {
			continue
		}
		pairs = append(pairs, storage.RowPair{Old: acc.first, New: acc.last})
	}
	return pairs
}

// rowIdentity mirrors the Executor's own rowKeyOf: a declared primary key's
// value when present, else a sorted content hash of the row. The two
// packages each need this independently (the Executor for CC's row_key,
// the Coordinator for update collapsing), so it is kept as a small,
// self-contained duplicate rather than threading a shared export across a
// package boundary for one helper.
func rowIdentity(schema storage.Schema, row storage.Row) string {
	if pk, ok := schema.PrimaryKey(); ok {
		v, _ := row.Get(pk.Name)
		return v.String()
	}
	parts := make([]string, 0, len(row))
	for _, f := range row {
		v, _ := row.Get(f.Key)
		parts = append(parts, f.Key+"="+v.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// flushBuffer flushes buf's current operations to Storage without clearing
// the caller's view of it — used by both commit (which clears after) and
// checkpoint (which clears the transaction's buffer once this returns).
func (c *Coordinator) flushBuffer(buf *executor.Buffer) error {
	batches, err := c.groupAndCollapse(buf.Ops())
	if err != nil {
		return err
	}
	for table, batch := range batches {
		if len(batch.inserts) > 0 {
			if _, err := c.store.WriteBlock(table, batch.inserts, storage.ModeAppend); err != nil {
				return err
			}
		}
		if len(batch.updates) > 0 {
			if _, err := c.store.UpdateByOldNew(table, batch.updates); err != nil {
				return err
			}
		}
		for _, row := range batch.deletes {
			if _, err := c.store.DeleteBlock(table, identityConditions(row)); err != nil {
				return err
			}
		}
	}
	return nil
}

// identityConditions builds an equality condition per column of row, an
// exact-row match good enough to target the one row a buffered delete
// recorded — the same full-row-identity fallback rowIdentity uses when a
// table declares no primary key.
func identityConditions(row storage.Row) []storage.Condition {
	conds := make([]storage.Condition, 0, len(row))
	for _, f := range row {
		v, _ := row.Get(f.Key)
		conds = append(conds, storage.Condition{Column: f.Key, Op: storage.OpEq, Value: v})
	}
	return conds
}
