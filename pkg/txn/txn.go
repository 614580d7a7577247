// Package txn is the Transaction Coordinator: per-client session state,
// write buffering, WAL discipline, commit batching and abort recovery. It
// is the only caller that drives the Executor, the CC Manager and the
// Recovery Log together — nothing downstream knows a transaction exists.
package txn

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/executor"
	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/tree"
	"github.com/bobboyms/reldb/pkg/wal"
)

// Store is the slice of Block Storage the Coordinator flushes buffered
// writes against, in addition to what the Executor reads through on its
// own (Store embeds executor.Store for that reason).
type Store interface {
	executor.Store
	WriteBlock(table string, rows []storage.Row, mode storage.WriteMode) (int, error)
	UpdateByOldNew(table string, pairs []storage.RowPair) (int, error)
	DeleteBlock(table string, conditions []storage.Condition) (int, error)
}

// CC is the slice of the Concurrency Control Manager the Coordinator calls
// directly, in addition to what the Executor validates every row touch
// against (CC embeds executor.CCManager for that reason).
type CC interface {
	executor.CCManager
	Begin(clientID string) uint64
	End(tid uint64, outcome lock.Outcome) error
}

// Log is the Recovery Log surface the Coordinator drives.
type Log interface {
	LogBegin(tid uint64) error
	LogWrite(tid uint64, table string, oldRow, newRow storage.Row) error
	LogCommit(tid uint64) error
	LogAbort(tid uint64) error
	Checkpoint() error
	RecoverTransaction(tid uint64) ([]wal.UndoOp, error)
}

// DefaultCheckpointThreshold is the number of WRITE log records the
// Coordinator lets accumulate before forcing a checkpoint, chosen small so
// tests exercise the checkpoint/recovery path deterministically rather than
// needing thousands of statements to trigger it.
const DefaultCheckpointThreshold = 5

// Coordinator owns every client session and is the single point through
// which statements reach the Executor.
type Coordinator struct {
	store Store
	cc    CC
	log   Log

	checkpointThreshold int
	logger              zerolog.Logger

	mu                    sync.Mutex
	sessions              map[string]*Session
	writesSinceCheckpoint int
}

// New opens a Coordinator with the default checkpoint threshold and a
// disabled logger; call WithLogger to attach one.
func New(store Store, cc CC, log Log) *Coordinator {
	return &Coordinator{
		store:               store,
		cc:                  cc,
		log:                 log,
		checkpointThreshold: DefaultCheckpointThreshold,
		logger:              zerolog.Nop(),
		sessions:            make(map[string]*Session),
	}
}

// WithCheckpointThreshold overrides the default, returning c for chaining.
func (c *Coordinator) WithCheckpointThreshold(n int) *Coordinator {
	c.checkpointThreshold = n
	return c
}

// WithLogger attaches a sub-logger the Coordinator uses for commit/abort/
// checkpoint summaries, the way the ambient stack's other subsystems each
// take their own component logger rather than reaching for a global one.
func (c *Coordinator) WithLogger(logger zerolog.Logger) *Coordinator {
	c.logger = logger.With().Str("component", "coordinator").Logger()
	return c
}

// NewClientID mints a fresh per-connection identity, the way the teacher's
// Storage layer minted row keys — reused here for session identity instead,
// since a client_id is never a row key. NewV7 is time-ordered, so client IDs
// sort roughly by connection time in logs and storage.
func NewClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Session is one client's transactional state: at most one active
// Transaction, opened either implicitly (auto-commit) or by an explicit
// BEGIN_TRANSACTION statement — Execute tells the two apart by whether a
// transaction already existed when the current statement arrived, so
// nothing here needs to record which way the current one started.
type Session struct {
	ClientID string
	txn      *Transaction
}

// InTransaction reports whether clientID currently has an explicit
// transaction open, the one piece of Coordinator state the network shell
// needs to pick between its two prompts.
func (c *Coordinator) InTransaction(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[clientID]
	return ok && sess.txn != nil
}

func (c *Coordinator) session(clientID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[clientID]
	if !ok {
		s = &Session{ClientID: clientID}
		c.sessions[clientID] = s
	}
	return s
}

// Execute runs one statement on behalf of clientID, opening an implicit
// (auto-commit) transaction first if the session has none active. DML
// and query plans are routed to the Executor; BEGIN_TRANSACTION/COMMIT
// markers are handled here directly. ABORT is not taken here: it goes
// through Abort.
func (c *Coordinator) Execute(clientID string, root *tree.Node) (executor.Result, error) {
	sess := c.session(clientID)

	switch root.Type {
	case tree.BEGIN_TRANSACTION:
		if sess.txn != nil {
			return executor.Result{}, fmt.Errorf("txn: session %s already has an active transaction", clientID)
		}
		if err := c.begin(sess, clientID); err != nil {
			return executor.Result{}, err
		}
		return executor.Result{}, nil

	case tree.COMMIT:
		if sess.txn == nil {
			return executor.Result{}, fmt.Errorf("txn: session %s has no active transaction to commit", clientID)
		}
		return executor.Result{}, c.Commit(clientID)
	}

	implicit := sess.txn == nil
	if implicit {
		if err := c.begin(sess, clientID); err != nil {
			return executor.Result{}, err
		}
	}

	res, err := c.runWithRetry(sess.txn, root)
	if err != nil {
		if kinded, ok := err.(errors.Kinded); ok && drivesAbort(kinded.Kind()) {
			if abortErr := c.Abort(clientID); abortErr != nil {
				return res, fmt.Errorf("%w (abort also failed: %v)", err, abortErr)
			}
			return res, err
		}
		// Parse/Schema/Predicate leave an explicit transaction usable for a
		// retry. An auto-commit statement still closes out here, since
		// there is no following statement left to share the transaction
		// with, releasing whatever locks it had already acquired.
		if implicit {
			if commitErr := c.Commit(clientID); commitErr != nil {
				return res, fmt.Errorf("%w (commit also failed: %v)", err, commitErr)
			}
		}
		return res, err
	}

	if err := c.logNewWrites(sess.txn); err != nil {
		return res, err
	}

	if implicit {
		if commitErr := c.Commit(clientID); commitErr != nil {
			return res, commitErr
		}
	}
	return res, nil
}

// drivesAbort mirrors the propagation table: Protocol/Resource/Internal
// always abort; Parse/Schema/Predicate leave the transaction usable.
func drivesAbort(kind errors.ErrorKind) bool {
	switch kind {
	case errors.KindProtocol, errors.KindResource, errors.KindInternal:
		return true
	default:
		return false
	}
}

func (c *Coordinator) begin(sess *Session, clientID string) error {
	tid := c.cc.Begin(clientID)
	if err := c.log.LogBegin(tid); err != nil {
		return err
	}
	sess.txn = &Transaction{
		ID:             tid,
		StartTimestamp: tid,
		Status:         Active,
		ClientID:       clientID,
		Exec:           executor.New(c.store, c.cc, tid),
	}
	return nil
}
