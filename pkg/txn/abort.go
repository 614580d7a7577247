package txn

import (
	"fmt"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/wal"
)

// Abort implements the ABORT path, whether explicit, CC-driven (Die), or
// raised by an executor error of protocol/resource/internal kind: discard
// the in-memory buffer, undo anything a checkpoint already flushed to
// Storage, append ABORT to the log, release locks.
func (c *Coordinator) Abort(clientID string) error {
	sess := c.session(clientID)
	if sess.txn == nil {
		return fmt.Errorf("txn: session %s has no active transaction", clientID)
	}
	txn := sess.txn

	txn.Exec.Buffer().Clear()

	undoOps, err := c.log.RecoverTransaction(txn.ID)
	if err != nil {
		return err
	}
	for _, op := range undoOps {
		if err := c.applyUndo(op); err != nil {
			return err
		}
	}

	if err := c.log.LogAbort(txn.ID); err != nil {
		return err
	}
	if err := c.cc.End(txn.ID, lock.Abort); err != nil {
		return err
	}

	txn.Status = Aborted
	sess.txn = nil
	c.logger.Warn().Uint64("tid", txn.ID).Str("client_id", clientID).Int("undo_ops", len(undoOps)).Msg("transaction aborted")
	return nil
}

func (c *Coordinator) applyUndo(op wal.UndoOp) error {
	switch op.Kind {
	case wal.UndoInsert:
		_, err := c.store.WriteBlock(op.Table, []storage.Row{op.New}, storage.ModeAppend)
		return err
	case wal.UndoDelete:
		_, err := c.store.DeleteBlock(op.Table, identityConditions(op.Old))
		return err
	case wal.UndoUpdate:
		_, err := c.store.UpdateByOldNew(op.Table, []storage.RowPair{{Old: op.Old, New: op.New}})
		return err
	default:
		return fmt.Errorf("txn: unknown undo kind %d", op.Kind)
	}
}
