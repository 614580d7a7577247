package lock

import (
	"fmt"
	"sync"

	"github.com/bobboyms/reldb/pkg/errors"
)

// occ is the optimistic validation variant: the read and write
// phases never block, accumulating a transaction's read-set and
// (buffered, unpublished) write-set; the validate phase runs at commit,
// checking the read-set against every write-set committed since this
// transaction began.
type occ struct {
	mu        sync.Mutex
	readSets  map[uint64]map[string]struct{}
	writeSets map[uint64]map[string]struct{}
	history   []occCommit
}

// occCommit tags a committed write-set with the committing transaction's
// own tid. Since tid is handed out in Begin order, comparing tids doubles
// as comparing start order, so a validating transaction can tell which
// committed write-sets came from transactions that started after it
// without a second, differently-scaled clock.
type occCommit struct {
	committerTID uint64
	writeSet     map[string]struct{}
}

func newOCC() *occ {
	return &occ{
		readSets:  make(map[uint64]map[string]struct{}),
		writeSets: make(map[uint64]map[string]struct{}),
	}
}

func (o *occ) begin(tid uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readSets[tid] = make(map[string]struct{})
	o.writeSets[tid] = make(map[string]struct{})
}

// validate accumulates the read-set or write-set; the real validation
// happens in end, at commit time.
func (o *occ) validate(tid uint64, table, rowKey string, mode Mode) (Verdict, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := objectKey(table, rowKey)
	if mode == ModeRead {
		o.readSets[tid][key] = struct{}{}
	} else {
		o.writeSets[tid][key] = struct{}{}
	}
	return Grant, nil
}

func (o *occ) end(tid uint64, outcome Outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	defer func() {
		delete(o.readSets, tid)
		delete(o.writeSets, tid)
	}()

	if outcome == Abort {
		return nil
	}

	readSet := o.readSets[tid]
	for _, committed := range o.history {
		if committed.committerTID <= tid {
			continue // started (and thus committed) before tid began; not concurrent
		}
		for key := range readSet {
			if _, overlap := committed.writeSet[key]; overlap {
				return &errors.ProtocolError{
					Variant: "occ",
					Reason:  fmt.Sprintf("read-set conflicts with a write committed by transaction %d on %q", committed.committerTID, key),
				}
			}
		}
	}

	published := make(map[string]struct{}, len(o.writeSets[tid]))
	for key := range o.writeSets[tid] {
		published[key] = struct{}{}
	}
	o.history = append(o.history, occCommit{committerTID: tid, writeSet: published})
	return nil
}
