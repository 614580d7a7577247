package storage

import (
	"testing"

	"github.com/bobboyms/reldb/pkg/types"
)

func TestCursor_SeekAndIterateInKeyOrder(t *testing.T) {
	e := NewEngine(t.TempDir())
	if err := e.CreateTable("products", usersSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	rows := []Row{newRow(30, "cherry", 0), newRow(10, "apple", 0), newRow(20, "banana", 0)}
	if _, err := e.WriteBlock("products", rows, ModeAppend); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}

	c, err := e.Cursor("products", "id")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	defer c.Close()

	c.Seek(types.Int(0))

	var keys []int64
	for c.Valid() {
		keys = append(keys, c.Key().(types.Value).I)
		if !c.Next() {
			break
		}
	}

	want := []int64{10, 20, 30}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestCursor_SeekToMissingKeyLandsOnNext(t *testing.T) {
	e := NewEngine(t.TempDir())
	if err := e.CreateTable("products", usersSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	rows := []Row{newRow(10, "apple", 0), newRow(30, "cherry", 0)}
	if _, err := e.WriteBlock("products", rows, ModeAppend); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}

	c, err := e.Cursor("products", "id")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	defer c.Close()

	c.Seek(types.Int(25))
	if !c.Valid() {
		t.Fatal("expected cursor to land on the next key after 25")
	}
	if got := c.Key().(types.Value).I; got != 30 {
		t.Fatalf("got key %d, want 30", got)
	}
}

func TestEngine_ReadAtDecodesRowFromCursorOffset(t *testing.T) {
	e := NewEngine(t.TempDir())
	if err := e.CreateTable("products", usersSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if _, err := e.WriteBlock("products", []Row{newRow(1, "alice", 30)}, ModeAppend); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}

	c, err := e.Cursor("products", "id")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	defer c.Close()
	c.Seek(types.Int(1))
	if !c.Valid() {
		t.Fatal("expected cursor to find the inserted row")
	}

	row, err := e.ReadAt("products", c.Value())
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	name, ok := row.Get("name")
	if !ok || name.String() != "alice" {
		t.Fatalf("got row %v, want name=alice", row)
	}
}
