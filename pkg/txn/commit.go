package txn

import (
	"fmt"

	"github.com/bobboyms/reldb/pkg/lock"
)

// Commit implements the COMMIT path: flush the collapsed buffer to
// Storage, append COMMIT to the log, release locks, clear state.
func (c *Coordinator) Commit(clientID string) error {
	sess := c.session(clientID)
	if sess.txn == nil {
		return fmt.Errorf("txn: session %s has no active transaction", clientID)
	}
	txn := sess.txn

	if err := c.flushBuffer(txn.Exec.Buffer()); err != nil {
		return err
	}
	if err := c.log.LogCommit(txn.ID); err != nil {
		return err
	}
	if err := c.cc.End(txn.ID, lock.Commit); err != nil {
		return err
	}

	txn.Exec.Buffer().Clear()
	txn.Status = Committed
	sess.txn = nil
	c.logger.Info().Uint64("tid", txn.ID).Str("client_id", clientID).Msg("transaction committed")
	return nil
}
