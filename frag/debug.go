package frag

// DebugAllocRecord describes one live allocation. Records only exist when
// Config.EnableDetailedLeakReports is set and are never consulted for
// correctness.
type DebugAllocRecord struct {
	Ptr  uintptr
	Size int
	Site Site
}

// debugTable is the per-allocator side table of live records. Removal swaps
// the last record into the hole, so order is not preserved.
type debugTable struct {
	records []DebugAllocRecord
	index   map[uintptr]int
}

func newDebugTable() *debugTable {
	return &debugTable{index: make(map[uintptr]int)}
}

func (t *debugTable) insert(rec DebugAllocRecord) {
	t.index[rec.Ptr] = len(t.records)
	t.records = append(t.records, rec)
}

func (t *debugTable) remove(ptr uintptr) bool {
	i, ok := t.index[ptr]
	if !ok {
		return false
	}
	last := len(t.records) - 1
	if i != last {
		t.records[i] = t.records[last]
		t.index[t.records[i].Ptr] = i
	}
	t.records = t.records[:last]
	delete(t.index, ptr)
	return true
}

// move re-keys a record after an in-place resize.
func (t *debugTable) move(from, to uintptr, size int) {
	i, ok := t.index[from]
	if !ok {
		return
	}
	delete(t.index, from)
	t.records[i].Ptr = to
	t.records[i].Size = size
	t.index[to] = i
}

func (t *debugTable) len() int { return len(t.records) }

// snapshot returns a copy safe to hand to a handler.
func (t *debugTable) snapshot() []DebugAllocRecord {
	if len(t.records) == 0 {
		return nil
	}
	out := make([]DebugAllocRecord, len(t.records))
	copy(out, t.records)
	return out
}
