package txn

import (
	"time"

	"github.com/bobboyms/reldb/pkg/executor"
	"github.com/bobboyms/reldb/pkg/tree"
)

// maxWaitRetries/waitRetryBackoff turn a Wait verdict into polling: the CC
// Manager's validate() is non-blocking by design (it returns a verdict, not
// a channel), so the suspension the spec describes for Wait-Die is
// approximated here by sleeping and re-issuing the same statement rather
// than parking on a condition variable. A real deployment would wake on the
// holder's end() instead of polling.
const (
	maxWaitRetries  = 200
	waitRetryBackoff = 2 * time.Millisecond
)

// runWithRetry runs root against txn's Executor, retrying on a Wait verdict
// up to maxWaitRetries times. Any other error (a Die abort included) is
// returned at once; when the retries run out, the last WaitError is returned.
func (c *Coordinator) runWithRetry(txn *Transaction, root *tree.Node) (executor.Result, error) {
	var lastErr error
	for attempt := 0; attempt < maxWaitRetries; attempt++ {
		res, err := txn.Exec.Run(root)
		if err == nil {
			return res, nil
		}
		if _, isWait := err.(*executor.WaitError); !isWait {
			return res, err
		}
		lastErr = err
		time.Sleep(waitRetryBackoff)
	}
	c.logger.Warn().Uint64("tid", txn.ID).Int("attempts", maxWaitRetries).Msg("wait retries exhausted")
	return executor.Result{}, lastErr
}

// logNewWrites appends a WRITE log record for every buffered operation
// accumulated since the last call, per the WAL-discipline requirement that
// a write record lands in the log immediately rather than only at commit.
// It also advances the checkpoint counter and triggers one if crossed.
func (c *Coordinator) logNewWrites(txn *Transaction) error {
	ops := txn.Exec.Buffer().Ops()
	fresh := ops[txn.logged:]
	for _, op := range fresh {
		if err := c.log.LogWrite(txn.ID, op.Table, op.Old, op.New); err != nil {
			return err
		}
	}
	txn.logged = len(ops)
	if len(fresh) == 0 {
		return nil
	}

	c.mu.Lock()
	c.writesSinceCheckpoint += len(fresh)
	crossed := c.writesSinceCheckpoint >= c.checkpointThreshold
	c.mu.Unlock()

	if crossed {
		return c.checkpoint()
	}
	return nil
}

// checkpoint flushes every active session's buffered writes to Storage —
// making them durable there ahead of the CHECKPOINT marker — and clears
// each transaction's buffer. The transaction stays active; only the writes
// already logged move from "replay from WAL on crash" to "already in
// Storage". recover_transaction relies on exactly this boundary to decide
// which writes of an aborting transaction need an undo.
func (c *Coordinator) checkpoint() error {
	c.mu.Lock()
	var active []*Transaction
	for _, sess := range c.sessions {
		if sess.txn != nil {
			active = append(active, sess.txn)
		}
	}
	c.mu.Unlock()

	for _, txn := range active {
		if err := c.flushBuffer(txn.Exec.Buffer()); err != nil {
			return err
		}
		txn.Exec.Buffer().Clear()
		txn.logged = 0
	}

	if err := c.log.Checkpoint(); err != nil {
		return err
	}

	c.mu.Lock()
	c.writesSinceCheckpoint = 0
	c.mu.Unlock()
	c.logger.Debug().Int("active_transactions", len(active)).Msg("checkpoint")
	return nil
}
