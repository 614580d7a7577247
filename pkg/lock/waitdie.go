package lock

import "sync"

// waitDie is the primary variant: table-granularity locks, shared
// locks coexist, exclusive locks are held alone, and a requester older
// (lower tid) than the current holder waits while a younger requester dies.
type waitDie struct {
	mu     sync.Mutex
	tables map[string]*tableLockState
	heldBy map[uint64]map[string]struct{}
}

type waitEntry struct {
	tid  uint64
	mode Mode
}

type tableLockState struct {
	mode    Mode // meaningful only while holders is non-empty
	holders map[uint64]struct{}
	waiters []waitEntry
}

func newWaitDie() *waitDie {
	return &waitDie{
		tables: make(map[string]*tableLockState),
		heldBy: make(map[uint64]map[string]struct{}),
	}
}

func (w *waitDie) begin(tid uint64) {}

func (w *waitDie) stateFor(table string) *tableLockState {
	tl, ok := w.tables[table]
	if !ok {
		tl = &tableLockState{holders: make(map[uint64]struct{})}
		w.tables[table] = tl
	}
	return tl
}

func compatible(tl *tableLockState, mode Mode) bool {
	if len(tl.holders) == 0 {
		return true
	}
	return mode == ModeRead && tl.mode == ModeRead
}

// oldestExcluding returns the lowest tid among holders other than exclude,
// or 0 if there are none (an empty result never conflicts).
func oldestExcluding(tl *tableLockState, exclude uint64) (uint64, bool) {
	var oldest uint64
	found := false
	for tid := range tl.holders {
		if tid == exclude {
			continue
		}
		if !found || tid < oldest {
			oldest = tid
			found = true
		}
	}
	return oldest, found
}

func (w *waitDie) markHeld(tid uint64, table string) {
	set, ok := w.heldBy[tid]
	if !ok {
		set = make(map[string]struct{})
		w.heldBy[tid] = set
	}
	set[table] = struct{}{}
}

func (w *waitDie) grant(tl *tableLockState, tid uint64, mode Mode, table string) {
	if len(tl.holders) == 0 {
		tl.mode = mode
	}
	tl.holders[tid] = struct{}{}
	w.markHeld(tid, table)
}

func isWaiting(tl *tableLockState, tid uint64) bool {
	for _, e := range tl.waiters {
		if e.tid == tid {
			return true
		}
	}
	return false
}

func atHead(tl *tableLockState, tid uint64) bool {
	return len(tl.waiters) > 0 && tl.waiters[0].tid == tid
}

func dequeue(tl *tableLockState, tid uint64) {
	for i, e := range tl.waiters {
		if e.tid == tid {
			tl.waiters = append(tl.waiters[:i], tl.waiters[i+1:]...)
			return
		}
	}
}

func (w *waitDie) validate(tid uint64, table, _ string, mode Mode) (Verdict, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tl := w.stateFor(table)

	if _, holding := tl.holders[tid]; holding {
		if mode == ModeRead || tl.mode == ModeWrite {
			return Grant, nil
		}
		// Upgrade request: shared -> exclusive.
		if len(tl.holders) == 1 {
			tl.mode = ModeWrite
			return Grant, nil
		}
		if isWaiting(tl, tid) {
			return Wait, nil
		}
		if oldest, any := oldestExcluding(tl, tid); any && tid < oldest {
			tl.waiters = append(tl.waiters, waitEntry{tid: tid, mode: mode})
			return Wait, nil
		}
		return Die, nil
	}

	if isWaiting(tl, tid) {
		if atHead(tl, tid) && compatible(tl, mode) {
			dequeue(tl, tid)
			w.grant(tl, tid, mode, table)
			return Grant, nil
		}
		return Wait, nil
	}

	if compatible(tl, mode) {
		w.grant(tl, tid, mode, table)
		return Grant, nil
	}

	oldest, _ := oldestExcluding(tl, tid)
	if tid < oldest {
		tl.waiters = append(tl.waiters, waitEntry{tid: tid, mode: mode})
		return Wait, nil
	}
	return Die, nil
}

func (w *waitDie) end(tid uint64, _ Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for table := range w.heldBy[tid] {
		tl := w.tables[table]
		delete(tl.holders, tid)
		if len(tl.holders) == 0 {
			w.wakeWaiters(tl, table)
		}
	}
	delete(w.heldBy, tid)

	for _, tl := range w.tables {
		dequeue(tl, tid)
	}
	return nil
}

// wakeWaiters grants the table to waiters in FIFO order for as long as each
// successive head is compatible with what's already been granted.
func (w *waitDie) wakeWaiters(tl *tableLockState, table string) {
	for len(tl.waiters) > 0 {
		head := tl.waiters[0]
		if !compatible(tl, head.mode) {
			break
		}
		tl.waiters = tl.waiters[1:]
		if len(tl.holders) == 0 {
			tl.mode = head.mode
		}
		tl.holders[head.tid] = struct{}{}
		w.markHeld(head.tid, table)
	}
}
