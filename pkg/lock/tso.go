package lock

import "sync"

// tso is the timestamp ordering variant: every transaction carries
// its tid as a monotonic start timestamp, every object tracks a read and
// write timestamp, and a request older than what it conflicts with simply
// dies — there is no waiting.
type tso struct {
	mu      sync.Mutex
	readTS  map[string]uint64
	writeTS map[string]uint64
	startTS map[uint64]uint64
}

func newTSO() *tso {
	return &tso{
		readTS:  make(map[string]uint64),
		writeTS: make(map[string]uint64),
		startTS: make(map[uint64]uint64),
	}
}

func (t *tso) begin(tid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTS[tid] = tid
}

func objectKey(table, rowKey string) string {
	return table + "\x00" + rowKey
}

func (t *tso) validate(tid uint64, table, rowKey string, mode Mode) (Verdict, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.startTS[tid]
	key := objectKey(table, rowKey)

	switch mode {
	case ModeRead:
		if ts < t.writeTS[key] {
			return Die, nil
		}
		if ts > t.readTS[key] {
			t.readTS[key] = ts
		}
		return Grant, nil
	default: // ModeWrite
		if ts < t.readTS[key] || ts < t.writeTS[key] {
			return Die, nil
		}
		t.writeTS[key] = ts
		return Grant, nil
	}
}

func (t *tso) end(tid uint64, _ Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.startTS, tid)
	return nil
}
