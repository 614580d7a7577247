package storage

import (
	"github.com/bobboyms/reldb/pkg/query"
	"github.com/bobboyms/reldb/pkg/types"
)

// indexableCondition picks the first condition (if any) that both names the
// table's primary key column and uses an operator a B+Tree range scan can
// seek on, letting read_block skip a full heap scan for the common
// point-lookup and range-filter cases.
func indexableCondition(t *Table, conditions []Condition) (Column, Condition, bool) {
	pk, hasPK := t.Schema.PrimaryKey()
	if !hasPK {
		return Column{}, Condition{}, false
	}
	for _, c := range conditions {
		if c.Column != pk.Name || c.Value.IsNull() {
			continue
		}
		switch c.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
			return pk, c, true
		}
	}
	return Column{}, Condition{}, false
}

func scanConditionFor(c Condition) *query.ScanCondition {
	key := types.Key(c.Value)
	switch c.Op {
	case OpEq:
		return query.Equal(key)
	case OpLt:
		return query.LessThan(key)
	case OpLte:
		return query.LessOrEqual(key)
	case OpGt:
		return query.GreaterThan(key)
	case OpGte:
		return query.GreaterOrEqual(key)
	default:
		return nil
	}
}

// readBlockIndexed implements the indexed fast path of ReadBlock.
func (e *Engine) readBlockIndexed(tx *Transaction, t *Table, pk Column, idxCond Condition, conditions []Condition, columns []string) ([]Row, error) {
	idx := t.Indices[pk.Name]
	sc := scanConditionFor(idxCond)

	var results []Row

	if idxCond.Op == OpEq {
		offset, found := idx.Tree.Get(types.Key(idxCond.Value))
		if !found {
			return nil, nil
		}
		row, visible, err := e.readVersionChain(tx, t, offset)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, nil
		}
		ok, err := matchAll(row, conditions)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, t.Schema.Project(row, columns))
		}
		return results, nil
	}

	cursor := &Cursor{tree: idx.Tree}
	cursor.Seek(sc.GetStartKey())
	defer cursor.Close()

	for cursor.Valid() {
		key := cursor.Key()
		if !sc.ShouldContinue(key) {
			break
		}
		if sc.Matches(key) {
			offset := cursor.Value()
			row, visible, err := e.readVersionChain(tx, t, offset)
			if err != nil {
				return nil, err
			}
			if visible {
				ok, err := matchAll(row, conditions)
				if err != nil {
					return nil, err
				}
				if ok {
					results = append(results, t.Schema.Project(row, columns))
				}
			}
		}
		if !cursor.Next() {
			break
		}
	}
	return results, nil
}

// readVersionChain walks a row's MVCC version chain, starting at its newest
// physical offset (what the index points to), looking for the version
// visible to tx's snapshot. The index only ever stores the newest offset, so
// an older snapshot must walk PrevOffset backward to find its own view of
// the row.
func (e *Engine) readVersionChain(tx *Transaction, t *Table, offset int64) (Row, bool, error) {
	for offset >= 0 {
		data, header, err := t.Heap.Read(offset)
		if err != nil {
			return nil, false, err
		}
		if tx.IsVisible(header.CreateLSN, header.DeleteLSN) {
			row, err := DecodeRow(data)
			if err != nil {
				return nil, false, err
			}
			return row, true, nil
		}
		if header.CreateLSN > tx.SnapshotLSN {
			offset = header.PrevOffset
			continue
		}
		break
	}
	return nil, false, nil
}
