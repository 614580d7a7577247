package txn

import "github.com/bobboyms/reldb/pkg/executor"

// Status is a transaction's lifecycle state.
type Status int

const (
	Active Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is one client's unit of work: its identity, its lifecycle
// state, and the Executor instance carrying its buffered writes.
// StartTimestamp doubles as tid, the same way Wait-Die priority and TSO's
// timestamp both ride on the monotonic id rather than a separate clock
// read.
type Transaction struct {
	ID             uint64
	StartTimestamp uint64
	Status         Status
	ClientID       string
	Exec           *executor.Executor

	// logged is how many of Exec.Buffer().Ops() have already been written
	// to the WAL; logNewWrites only logs the suffix past this point.
	logged int
}
