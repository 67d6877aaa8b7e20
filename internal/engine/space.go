package engine

import (
	"github.com/joydb/joydb/internal/domain/schema"
	"github.com/joydb/joydb/internal/txn"
)

// TableSpace adapts a schema.Table to txn.Space. Every table runs its
// replace triggers and none are temporary: the storage layer always logs.
type TableSpace struct {
	Table     *schema.Table
	triggers  []txn.Trigger
}

// NewTableSpace wraps table, firing observer (if non-nil) on every replace
// via a single generated trigger.
func NewTableSpace(table *schema.Table, observer Observer) *TableSpace {
	s := &TableSpace{Table: table}
	if observer != nil {
		s.triggers = []txn.Trigger{observerTrigger(table.Name, observer)}
	}
	return s
}

func (s *TableSpace) Name() string      { return s.Table.Name }
func (s *TableSpace) Temporary() bool   { return false }
func (s *TableSpace) RunTriggers() bool { return true }
func (s *TableSpace) OnReplace() []txn.Trigger { return s.triggers }
