// Package engine adapts the storage layer's schema.Table rows to the
// txn package's Space/Engine/Tuple/Request capability interfaces, so that
// table mutations flow through the single-writer transaction coordinator
// instead of being applied directly.
package engine

import (
	"fmt"
	"time"

	"github.com/joydb/joydb/internal/domain/data"
	"github.com/joydb/joydb/internal/txn"
)

// TableEngine implements txn.Engine over schema.Table, reusing the
// table's own Insert/Update/Delete (which already hold the table lock,
// validate against the schema, and maintain indexes).
type TableEngine struct {
	observer Observer
}

// NewTableEngine builds an engine that fires observer (may be nil) on
// every committed transaction.
func NewTableEngine(observer Observer) *TableEngine {
	return &TableEngine{observer: observer}
}

// Replace dispatches to Table.Insert/Update/Delete based on which of
// old/new is present, matching the engine contract from internal/txn:
// old==nil -> insert new; new==nil -> delete old; both present -> update
// the row matching old's primary key to new's values.
func (e *TableEngine) Replace(space txn.Space, old, new txn.Tuple, mode txn.ReplaceMode) (txn.Tuple, error) {
	s, ok := space.(*TableSpace)
	if !ok {
		return nil, fmt.Errorf("engine: space %T is not a *TableSpace", space)
	}
	table := s.Table

	switch {
	case old == nil && new != nil:
		row := new.(*RowTuple).Row
		if err := table.Insert(row, nil); err != nil {
			return nil, err
		}
		return nil, nil

	case old != nil && new == nil:
		oldRow := old.(*RowTuple).Row
		pred, err := predicateForRow(table, oldRow)
		if err != nil {
			return nil, err
		}
		n, err := table.Delete(pred, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("engine: delete matched no row on table %s", table.Name)
		}
		return old, nil

	default: // update
		oldRow := old.(*RowTuple).Row
		newRow := new.(*RowTuple).Row
		pred, err := predicateForRow(table, oldRow)
		if err != nil {
			return nil, err
		}
		n, err := table.Update(pred, newRow, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("engine: update matched no row on table %s", table.Name)
		}
		return old, nil
	}
}

// TxnFinish fires the commit event for observability. The schema.Table
// mutation already happened synchronously inside Replace; there is no
// separate finalization step to perform on the table itself.
func (e *TableEngine) TxnFinish(t *txn.Txn) {
	if e.observer == nil || t.Space == nil {
		return
	}
	e.observer.OnEvent(Event{
		Type:      EventCommit,
		Table:     t.Space.Name(),
		Timestamp: time.Now(),
	})
}

// observerTrigger builds a txn.Trigger firing an EventReplace event for
// table whenever a replace-trigger list runs.
func observerTrigger(table string, observer Observer) txn.Trigger {
	return func(t *txn.Txn) error {
		observer.OnEvent(Event{
			Type:      EventReplace,
			Table:     table,
			Timestamp: time.Now(),
		})
		return nil
	}
}

// predicateForRow builds a predicate matching row by the table's primary
// key value.
func predicateForRow(table interface {
	GetPrimaryKeyValue(data.Row) (string, error)
}, row data.Row) (func(data.Row) bool, error) {
	key, err := table.GetPrimaryKeyValue(row)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return func(candidate data.Row) bool {
		candidateKey, err := table.GetPrimaryKeyValue(candidate)
		if err != nil {
			return false
		}
		return candidateKey == key
	}, nil
}
