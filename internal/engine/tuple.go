package engine

import (
	"sync/atomic"

	"github.com/joydb/joydb/internal/domain/data"
)

// RowTuple is a reference-counted handle on a single table row, satisfying
// txn.Tuple. The coordinator never reads Row directly; it only threads the
// pointer through Replace/Commit/Rollback.
type RowTuple struct {
	Row  data.Row
	refs int32
}

// NewRowTuple wraps row with a zero reference count.
func NewRowTuple(row data.Row) *RowTuple {
	return &RowTuple{Row: row}
}

func (t *RowTuple) Ref() { atomic.AddInt32(&t.refs, 1) }

func (t *RowTuple) Unref() { atomic.AddInt32(&t.refs, -1) }

// RefCount reports the tuple's current reference count, for tests.
func (t *RowTuple) RefCount() int32 { return atomic.LoadInt32(&t.refs) }
