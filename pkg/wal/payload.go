package wal

import (
	"fmt"

	"github.com/bobboyms/reldb/pkg/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BeginPayload is EntryBegin's body: log_begin(tid).
type BeginPayload struct {
	TID uint64 `bson:"tid"`
}

// WritePayload is EntryUpdate's body: log_write(tid, table, old, new). Old is
// absent for an insert, New is absent for a delete; both present is an
// update.
type WritePayload struct {
	TID   uint64      `bson:"tid"`
	Table string      `bson:"table"`
	Old   storage.Row `bson:"old,omitempty"`
	New   storage.Row `bson:"new,omitempty"`
}

// CommitPayload is EntryCommit's body: log_commit(tid).
type CommitPayload struct {
	TID uint64 `bson:"tid"`
}

// AbortPayload is EntryAbort's body: log_abort(tid).
type AbortPayload struct {
	TID uint64 `bson:"tid"`
}

// CheckpointPayload is EntryCheckpoint's body. It carries the LSN assigned
// to the CHECKPOINT marker itself; every write logged below it was flushed
// to Storage before the marker was appended.
type CheckpointPayload struct {
	LSN uint64 `bson:"lsn"`
}

func encodePayload(v interface{}) ([]byte, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode wal payload: %w", err)
	}
	return data, nil
}

func decodeBegin(data []byte) (BeginPayload, error) {
	var p BeginPayload
	err := bson.Unmarshal(data, &p)
	return p, err
}

func decodeWrite(data []byte) (WritePayload, error) {
	var p WritePayload
	err := bson.Unmarshal(data, &p)
	return p, err
}

func decodeCommit(data []byte) (CommitPayload, error) {
	var p CommitPayload
	err := bson.Unmarshal(data, &p)
	return p, err
}

func decodeAbort(data []byte) (AbortPayload, error) {
	var p AbortPayload
	err := bson.Unmarshal(data, &p)
	return p, err
}

func decodeCheckpoint(data []byte) (CheckpointPayload, error) {
	var p CheckpointPayload
	err := bson.Unmarshal(data, &p)
	return p, err
}
