package txn

// arena is a per-task scratch region for transient allocations (redo rows
// synthesized by AddRedo). Reset on every terminal transition of the
// owning Txn. A caller that needs a record to outlive the next Commit or
// Rollback must copy it out first.
type arena struct {
	buffers [][]byte
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) alloc(n int) []byte {
	buf := make([]byte, n)
	a.buffers = append(a.buffers, buf)
	return buf
}

// newRow copies body into a fresh arena-owned buffer and wraps it as a
// Row with no LSN assigned yet (the Appender assigns it on append).
func (a *arena) newRow(typ uint16, cookie uint64, body []byte) *Row {
	buf := a.alloc(len(body))
	copy(buf, body)
	return &Row{Type: typ, Cookie: cookie, Body: buf}
}

func (a *arena) reset() {
	a.buffers = nil
}
