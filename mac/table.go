package mac

// DefaultSize is the default capacity of a Table, matching the original
// switch's Mac_table<1024>.
const DefaultSize = 1024

type entry struct {
	addr Addr
	port any
	used bool
}

// Table is a bounded 1:n association between MAC addresses and the port
// (of type P) they were last seen on. It is not safe for concurrent use;
// the switch core is single-threaded and cooperative by design (see
// vswitch.Switch), so the table carries no internal locking.
//
// Replacement is strict round-robin over a fixed-size backing array:
// learning a new MAC when the table is full evicts the entry at the next
// round-robin slot and removes its MAC from the lookup index before
// installing the new one. Re-learning an already-known MAC updates the
// port pointer in place and does not advance the round-robin cursor.
type Table[P comparable] struct {
	entries []entry
	index   map[Addr]int
	rr      int
}

// NewTable creates a table with the given capacity. A capacity of zero
// falls back to DefaultSize.
func NewTable[P comparable](size int) *Table[P] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Table[P]{
		entries: make([]entry, size),
		index:   make(map[Addr]int, size),
	}
}

// Lookup returns the port last associated with addr, if any.
func (t *Table[P]) Lookup(addr Addr) (P, bool) {
	var zero P
	idx, ok := t.index[addr]
	if !ok {
		return zero, false
	}
	p, ok := t.entries[idx].port.(P)
	return p, ok
}

// Learn records that addr was last seen arriving from port. If addr is
// already known, only its port pointer is updated (supporting clients
// that move between ports); the round-robin cursor is not advanced. If the
// table is at capacity, the entry at the current round-robin slot is
// evicted first.
func (t *Table[P]) Learn(addr Addr, port P) {
	if idx, ok := t.index[addr]; ok {
		t.entries[idx].port = port
		return
	}

	idx := t.rr
	if t.entries[idx].used {
		delete(t.index, t.entries[idx].addr)
	}
	t.entries[idx] = entry{addr: addr, port: port, used: true}
	t.index[addr] = idx
	t.rr = (t.rr + 1) % len(t.entries)
}

// Flush removes every entry whose port equals port. Called on port
// teardown.
func (t *Table[P]) Flush(port P) {
	for idx := range t.entries {
		e := &t.entries[idx]
		if !e.used {
			continue
		}
		if p, ok := e.port.(P); ok && p == port {
			delete(t.index, e.addr)
			*e = entry{}
		}
	}
}

// Len returns the number of entries currently in the table.
func (t *Table[P]) Len() int {
	return len(t.index)
}

// Cap returns the table's fixed capacity.
func (t *Table[P]) Cap() int {
	return len(t.entries)
}
