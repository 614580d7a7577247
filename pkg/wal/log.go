package wal

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bobboyms/reldb/pkg/storage"
)

// UndoKind identifies the inverse action recover_transaction asks the
// Coordinator to replay against Storage.
type UndoKind uint8

const (
	// UndoInsert re-inserts New: the inverse of a flushed delete.
	UndoInsert UndoKind = iota
	// UndoDelete removes Old: the inverse of a flushed insert.
	UndoDelete
	// UndoUpdate replaces New with Old: the inverse of a flushed update,
	// i.e. update_by_old_new with old/new swapped.
	UndoUpdate
)

// UndoOp is one inverse operation recover_transaction hands back to the
// Coordinator, oldest-first, for replay against Storage.
type UndoOp struct {
	Kind  UndoKind
	Table string
	Old   storage.Row
	New   storage.Row
}

// Log is the Recovery Log: an append-only, checksummed record of every
// transaction's lifecycle (BEGIN/WRITE/COMMIT/ABORT) plus periodic
// CHECKPOINT markers.
type Log struct {
	writer *WALWriter
	path   string
	lsn    *storage.LSNTracker
}

// OpenLog opens (creating if absent) the WAL file under dirPath.
func OpenLog(dirPath string, opts Options) (*Log, error) {
	path := filepath.Join(dirPath, "reldb.wal")
	w, err := NewWALWriter(path, opts)
	if err != nil {
		return nil, err
	}
	return &Log{writer: w, path: path, lsn: storage.NewLSNTracker(0)}, nil
}

func (l *Log) append(entryType uint8, payload []byte) (uint64, error) {
	lsn := l.lsn.Next()
	entry := &WALEntry{
		Header: WALHeader{
			Magic:      WALMagic,
			Version:    WALVersion,
			EntryType:  entryType,
			LSN:        lsn,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
		},
		Payload: payload,
	}
	if err := l.writer.WriteEntry(entry); err != nil {
		return 0, err
	}
	return lsn, nil
}

// LogBegin implements log_begin(tid).
func (l *Log) LogBegin(tid uint64) error {
	payload, err := encodePayload(BeginPayload{TID: tid})
	if err != nil {
		return err
	}
	_, err = l.append(EntryBegin, payload)
	return err
}

// LogWrite implements log_write(tid, table, old, new). oldRow is nil for an
// insert, newRow is nil for a delete.
func (l *Log) LogWrite(tid uint64, table string, oldRow, newRow storage.Row) error {
	payload, err := encodePayload(WritePayload{TID: tid, Table: table, Old: oldRow, New: newRow})
	if err != nil {
		return err
	}
	_, err = l.append(EntryUpdate, payload)
	return err
}

// LogCommit implements log_commit(tid).
func (l *Log) LogCommit(tid uint64) error {
	payload, err := encodePayload(CommitPayload{TID: tid})
	if err != nil {
		return err
	}
	_, err = l.append(EntryCommit, payload)
	return err
}

// LogAbort implements log_abort(tid).
func (l *Log) LogAbort(tid uint64) error {
	payload, err := encodePayload(AbortPayload{TID: tid})
	if err != nil {
		return err
	}
	_, err = l.append(EntryAbort, payload)
	return err
}

// Checkpoint implements checkpoint(): it appends a CHECKPOINT marker
// recording the LSN just assigned to it. Flushing the Coordinator's
// buffered-not-yet-stored writes to Storage is the Coordinator's job; this
// only records the durability boundary in the log.
func (l *Log) Checkpoint() error {
	lsn := l.lsn.Next()
	payload, err := encodePayload(CheckpointPayload{LSN: lsn})
	if err != nil {
		return err
	}
	entry := &WALEntry{
		Header: WALHeader{
			Magic:      WALMagic,
			Version:    WALVersion,
			EntryType:  EntryCheckpoint,
			LSN:        lsn,
			PayloadLen: uint32(len(payload)),
			CRC32:      CalculateCRC32(payload),
		},
		Payload: payload,
	}
	return l.writer.WriteEntry(entry)
}

// Sync flushes and fsyncs the underlying log file.
func (l *Log) Sync() error { return l.writer.Sync() }

// Close flushes and closes the underlying log file.
func (l *Log) Close() error { return l.writer.Close() }

// logRecord is one decoded WAL entry, kept in memory just long enough for
// the backward scan below to run over it.
type logRecord struct {
	entryType uint8
	payload   []byte
}

func (l *Log) readAll() ([]logRecord, error) {
	r, err := NewWALReader(l.path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []logRecord
	for {
		entry, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wal: %w", err)
		}
		payload := make([]byte, len(entry.Payload))
		copy(payload, entry.Payload)
		records = append(records, logRecord{entryType: entry.Header.EntryType, payload: payload})
		ReleaseEntry(entry)
	}
	return records, nil
}

// RecoverTransaction implements recover_transaction(tid): the undo
// algorithm. It walks the log backward from the tail, looking for tid's
// BEGIN marker. Writes found before the nearest preceding CHECKPOINT (i.e.
// closer to BEGIN) were flushed to Storage when that checkpoint ran and
// must be undone; writes found after it (closer to the tail, postdating
// the last flush) never left the Coordinator's in-memory buffer and need
// no undo. The walk stops at BEGIN(tid); an ABORT(tid) marker is appended
// once the caller has replayed every returned op.
func (l *Log) RecoverTransaction(tid uint64) ([]UndoOp, error) {
	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var confirmed []UndoOp
	crossedCheckpoint := false

scan:
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		switch rec.entryType {
		case EntryCheckpoint:
			crossedCheckpoint = true
		case EntryUpdate:
			w, err := decodeWrite(rec.payload)
			if err != nil {
				return nil, fmt.Errorf("decode wal write: %w", err)
			}
			if w.TID != tid {
				continue
			}
			if crossedCheckpoint {
				confirmed = append(confirmed, inverseOf(w))
			}
			// else: still in the Coordinator's in-memory buffer, never
			// reached Storage, nothing to undo.
		case EntryBegin:
			b, err := decodeBegin(rec.payload)
			if err != nil {
				return nil, fmt.Errorf("decode wal begin: %w", err)
			}
			if b.TID == tid {
				break scan
			}
		}
	}

	// confirmed was appended walking backward (newest first); the undo
	// algorithm returns oldest-first so the Coordinator replays them in the
	// order they would have happened had they never been applied.
	for i, j := 0, len(confirmed)-1; i < j; i, j = i+1, j-1 {
		confirmed[i], confirmed[j] = confirmed[j], confirmed[i]
	}
	return confirmed, nil
}

func inverseOf(w WritePayload) UndoOp {
	switch {
	case len(w.Old) == 0 && len(w.New) != 0:
		// original was an insert; undo deletes the inserted row.
		return UndoOp{Kind: UndoDelete, Table: w.Table, Old: w.New}
	case len(w.Old) != 0 && len(w.New) == 0:
		// original was a delete; undo re-inserts it.
		return UndoOp{Kind: UndoInsert, Table: w.Table, New: w.Old}
	default:
		// original was an update; undo is an update with old/new swapped.
		return UndoOp{Kind: UndoUpdate, Table: w.Table, Old: w.New, New: w.Old}
	}
}
