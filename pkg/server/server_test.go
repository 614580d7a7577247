package server

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/txn"
	"github.com/bobboyms/reldb/pkg/types"
	"github.com/bobboyms/reldb/pkg/wal"
)

// fakeStore/fakeCC mirror pkg/txn's own test fakes (same in-memory shape,
// table-by-table map); fakeLog records nothing and recovers no undo ops. So
// the server can be exercised end to end without a live *storage.Engine or
// *wal.Log.

type fakeTable struct {
	schema storage.Schema
	rows   []storage.Row
}

type fakeStore struct {
	mu     sync.Mutex
	tables map[string]*fakeTable
}

func newFakeStore() *fakeStore { return &fakeStore{tables: make(map[string]*fakeTable)} }

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
	t.rows = append(t.rows, rows...)
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
	var kept []storage.Row
	deleted := 0
	for _, row := range t.rows {
		match := true
		for _, c := range conditions {
			v, ok := row.Get(c.Column)
			if !ok || !v.Equal(c.Value) {
				match = false
				break
			}
		}
		if match {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return deleted, nil
}

type fakeCC struct {
	mu      sync.Mutex
	nextTID uint64
}

func newFakeCC() *fakeCC { return &fakeCC{} }

func (c *fakeCC) Begin(clientID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTID++
	return c.nextTID
}

func (c *fakeCC) Validate(tid uint64, table, rowKey string, mode lock.Mode) (lock.Verdict, error) {
	return lock.Grant, nil
}

func (c *fakeCC) CurrentVariant() lock.Variant { return lock.WaitDieVariant }

func (c *fakeCC) End(tid uint64, outcome lock.Outcome) error { return nil }

type fakeLog struct{}

func newFakeLog() *fakeLog                                             { return &fakeLog{} }
func (l *fakeLog) LogBegin(tid uint64) error                           { return nil }
func (l *fakeLog) LogWrite(uint64, string, storage.Row, storage.Row) error { return nil }
func (l *fakeLog) LogCommit(tid uint64) error                          { return nil }
func (l *fakeLog) LogAbort(tid uint64) error                           { return nil }
func (l *fakeLog) Checkpoint() error                                   { return nil }
func (l *fakeLog) RecoverTransaction(uint64) ([]wal.UndoOp, error)     { return nil, nil }

func startTestServer(t *testing.T) (addr string, store *fakeStore) {
	t.Helper()
	store = newFakeStore()
	store.tables["accounts"] = &fakeTable{schema: storage.Schema{Columns: []storage.Column{
		{Name: "id", Type: storage.TypeInt, PrimaryKey: true},
		{Name: "name", Type: storage.TypeVarchar},
	}}}

	coord := txn.New(store, newFakeCC(), newFakeLog())
	srv := New("127.0.0.1:0", coord)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn)
		}
	}()
	t.Cleanup(func() { srv.Shutdown() })
	return ln.Addr().String(), store
}

// readUntilPrompt reads lines until one of the two prompts is seen (sent
// without a trailing newline), returning everything read before it.
func readUntilPrompt(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var out strings.Builder
	buf := make([]byte, 1)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for prompt")
		}
		n, err := r.Read(buf)
		if n > 0 {
			out.WriteByte(buf[0])
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		s := out.String()
		if strings.HasSuffix(s, promptAutoCommit) || strings.HasSuffix(s, promptInTransaction) {
			return s
		}
	}
}

func TestServer_InsertReportsAffectedRows(t *testing.T) {
	addr, store := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	readUntilPrompt(t, r) // greeting prompt

	_, err = conn.Write([]byte("INSERT INTO accounts (id, name) VALUES (1, 'alice');\n"))
	require.NoError(t, err)
	out := readUntilPrompt(t, r)
	require.Contains(t, out, "OK 1 row(s) affected")
	require.Len(t, store.tables["accounts"].rows, 1)
}

func TestServer_SelectReturnsRowsBlock(t *testing.T) {
	addr, store := startTestServer(t)
	store.tables["accounts"].rows = append(store.tables["accounts"].rows,
		storage.Row{}.With("id", types.Int(1)).With("name", types.String("alice")))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	readUntilPrompt(t, r)

	_, err = conn.Write([]byte("SELECT * FROM accounts;\n"))
	require.NoError(t, err)
	out := readUntilPrompt(t, r)
	require.Contains(t, out, "OK 1 row(s)")
	require.Contains(t, out, "alice")
}

func TestServer_BeginCommitSwitchesPrompt(t *testing.T) {
	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	readUntilPrompt(t, r)

	_, err = conn.Write([]byte("BEGIN TRANSACTION;\n"))
	require.NoError(t, err)
	out := readUntilPrompt(t, r)
	require.True(t, strings.HasSuffix(out, promptInTransaction))

	_, err = conn.Write([]byte("COMMIT;\n"))
	require.NoError(t, err)
	out = readUntilPrompt(t, r)
	require.True(t, strings.HasSuffix(out, promptAutoCommit))
}

func TestServer_ParseErrorSurfacesAsErrorLine(t *testing.T) {
	addr, _ := startTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	readUntilPrompt(t, r)

	_, err = conn.Write([]byte("SELEKT * FROM accounts;\n"))
	require.NoError(t, err)
	out := readUntilPrompt(t, r)
	require.Contains(t, out, "ERROR parse")
}
