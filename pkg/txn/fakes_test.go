package txn

import (
	"sync"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/wal"
)

// fakeStore is an in-memory Store, the same pattern pkg/executor's
// fakeStore uses to drive the Coordinator without a live *storage.Engine.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]*fakeTable
}

type fakeTable struct {
	schema storage.Schema
	rows   []storage.Row
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]*fakeTable)}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "table not found: " + e.name }

func (s *fakeStore) CreateTable(name string, schema storage.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &fakeTable{schema: schema}
	return nil
}

func (s *fakeStore) DropTable(name string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *fakeStore) Schema(name string) (storage.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return storage.Schema{}, &notFoundError{name}
	}
	return t.schema, nil
}

func (s *fakeStore) ReadBlock(table string, columns []string, conditions []storage.Condition) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, &notFoundError{table}
	}
	out := make([]storage.Row, len(t.rows))
	copy(out, t.rows)
	return out, nil
}

func (s *fakeStore) WriteBlock(table string, rows []storage.Row, mode storage.WriteMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, &notFoundError{table}
	}
	for _, row := range rows {
		if mode == storage.ModeReplace {
			if pk, hasPK := t.schema.PrimaryKey(); hasPK {
				key, _ := row.Get(pk.Name)
				replaced := false
				for i, existing := range t.rows {
					if v, ok := existing.Get(pk.Name); ok && v.Equal(key) {
						t.rows[i] = row
						replaced = true
						break
					}
				}
				if replaced {
					continue
				}
			}
		}
		t.rows = append(t.rows, row)
	}
	return len(rows), nil
}

func (s *fakeStore) UpdateByOldNew(table string, pairs []storage.RowPair) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, &notFoundError{table}
	}
	updated := 0
	for _, pair := range pairs {
		for i, row := range t.rows {
			if row.Equal(pair.Old) {
				t.rows[i] = pair.New
				updated++
				break
			}
		}
	}
	return updated, nil
}

func (s *fakeStore) DeleteBlock(table string, conditions []storage.Condition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, &notFoundError{table}
	}
	kept := t.rows[:0]
	deleted := 0
	for _, row := range t.rows {
		if rowMatches(row, conditions) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return deleted, nil
}

func rowMatches(row storage.Row, conditions []storage.Condition) bool {
	for _, c := range conditions {
		v, ok := row.Get(c.Column)
		if !ok || !v.Equal(c.Value) {
			return false
		}
	}
	return true
}

// fakeCC grants by default; tests flip verdict/variant to exercise Wait/Die.
// waitCountdown, when positive, returns Wait and decrements on each Validate
// call until it reaches zero, then falls back to verdict — a deterministic
// way to exercise runWithRetry's polling loop without an actual race.
type fakeCC struct {
	mu            sync.Mutex
	nextTID       uint64
	verdict       lock.Verdict
	variant       lock.Variant
	waitCountdown int
	validateCalls int
	ended         []endCall
}

type endCall struct {
	tid     uint64
	outcome lock.Outcome
}

func newFakeCC() *fakeCC { return &fakeCC{verdict: lock.Grant} }

func (c *fakeCC) Begin(clientID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTID++
	return c.nextTID
}

func (c *fakeCC) Validate(tid uint64, table, rowKey string, mode lock.Mode) (lock.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validateCalls++
	if c.waitCountdown > 0 {
		c.waitCountdown--
		return lock.Wait, nil
	}
	return c.verdict, nil
}

func (c *fakeCC) CurrentVariant() lock.Variant { return c.variant }

func (c *fakeCC) End(tid uint64, outcome lock.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = append(c.ended, endCall{tid, outcome})
	return nil
}

// fakeLog replays the same backward-scan recovery algorithm as *wal.Log,
// over an in-memory record slice instead of a file, so Coordinator tests
// can exercise checkpoint/abort without touching disk.
type fakeLog struct {
	mu      sync.Mutex
	records []fakeRecord
}

type fakeRecord struct {
	kind  string // "begin", "write", "commit", "abort", "checkpoint"
	tid   uint64
	table string
	old   storage.Row
	new   storage.Row
}

func newFakeLog() *fakeLog { return &fakeLog{} }

func (l *fakeLog) LogBegin(tid uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, fakeRecord{kind: "begin", tid: tid})
	return nil
}

func (l *fakeLog) LogWrite(tid uint64, table string, oldRow, newRow storage.Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, fakeRecord{kind: "write", tid: tid, table: table, old: oldRow, new: newRow})
	return nil
}

func (l *fakeLog) LogCommit(tid uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, fakeRecord{kind: "commit", tid: tid})
	return nil
}

func (l *fakeLog) LogAbort(tid uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, fakeRecord{kind: "abort", tid: tid})
	return nil
}

func (l *fakeLog) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, fakeRecord{kind: "checkpoint"})
	return nil
}

func (l *fakeLog) RecoverTransaction(tid uint64) ([]wal.UndoOp, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var confirmed []wal.UndoOp
	crossedCheckpoint := false
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		switch rec.kind {
		case "checkpoint":
			crossedCheckpoint = true
		case "write":
			if rec.tid != tid {
				continue
			}
			if crossedCheckpoint {
				confirmed = append(confirmed, inverseOf(rec))
			}
		case "begin":
			if rec.tid == tid {
				i = -1 // stop the scan
			}
		}
	}
	for i, j := 0, len(confirmed)-1; i < j; i, j = i+1, j-1 {
		confirmed[i], confirmed[j] = confirmed[j], confirmed[i]
	}
	return confirmed, nil
}

func inverseOf(rec fakeRecord) wal.UndoOp {
	switch {
	case len(rec.old) == 0 && len(rec.new) != 0:
		return wal.UndoOp{Kind: wal.UndoDelete, Table: rec.table, Old: rec.new}
	case len(rec.old) != 0 && len(rec.new) == 0:
		return wal.UndoOp{Kind: wal.UndoInsert, Table: rec.table, New: rec.old}
	default:
		return wal.UndoOp{Kind: wal.UndoUpdate, Table: rec.table, Old: rec.new, New: rec.old}
	}
}
