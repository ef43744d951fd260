package core

import "sync"

const defaultTaskHistoryCapacity = 100

// drainLog keeps the latest task executions of a runner, each tagged with the
// drain and round it ran in. The servicing goroutine writes; any goroutine may
// read.
type drainLog struct {
	mu      sync.Mutex
	records []TaskExecutionRecord
	next    int
	full    bool
}

func newDrainLog(capacity int) *drainLog {
	if capacity < 1 {
		capacity = defaultTaskHistoryCapacity
	}
	return &drainLog{records: make([]TaskExecutionRecord, capacity)}
}

func (l *drainLog) record(rec TaskExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[l.next] = rec
	l.next++
	if l.next == len(l.records) {
		l.next = 0
		l.full = true
	}
}

func (l *drainLog) len() int {
	if l.full {
		return len(l.records)
	}
	return l.next
}

// scan visits records newest first until visit returns false.
func (l *drainLog) scan(visit func(TaskExecutionRecord) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.records)
	for i := 1; i <= l.len(); i++ {
		if !visit(l.records[(l.next-i+n)%n]) {
			return
		}
	}
}

// collect returns up to limit records accepted by keep, newest first. A
// non-positive limit means no limit.
func (l *drainLog) collect(limit int, keep func(TaskExecutionRecord) bool) []TaskExecutionRecord {
	var out []TaskExecutionRecord
	l.scan(func(rec TaskExecutionRecord) bool {
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// drain returns the retained records of one drain in execution order.
// Records of a drain are contiguous, so the scan stops once it has passed it.
func (l *drainLog) drain(seq int64) []TaskExecutionRecord {
	var out []TaskExecutionRecord
	l.scan(func(rec TaskExecutionRecord) bool {
		if rec.Drain == seq {
			out = append(out, rec)
			return true
		}
		return rec.Drain > seq
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (l *drainLog) last() (TaskExecutionRecord, bool) {
	var last TaskExecutionRecord
	found := false
	l.scan(func(rec TaskExecutionRecord) bool {
		last, found = rec, true
		return false
	})
	return last, found
}
