package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/joydb/joydb/internal/domain/data"
	"github.com/joydb/joydb/internal/txn"
)

// Operation tags the redo record's Type field.
type Operation uint16

const (
	OpInsert Operation = 1
	OpUpdate Operation = 2
	OpDelete Operation = 3
)

// rowRequest is the shared Request implementation for insert/update/delete:
// the body is [2-byte table name length][table name][row JSON]. Delete
// encodes the row being removed, so recovery can locate it by primary key.
type rowRequest struct {
	op    Operation
	table string
	row   data.Row
}

// NewInsertRequest builds a redo request for inserting row into table.
func NewInsertRequest(table string, row data.Row) txn.Request {
	return &rowRequest{op: OpInsert, table: table, row: row}
}

// NewUpdateRequest builds a redo request recording newRow as table's
// post-update state.
func NewUpdateRequest(table string, newRow data.Row) txn.Request {
	return &rowRequest{op: OpUpdate, table: table, row: newRow}
}

// NewDeleteRequest builds a redo request recording the row removed from
// table.
func NewDeleteRequest(table string, oldRow data.Row) txn.Request {
	return &rowRequest{op: OpDelete, table: table, row: oldRow}
}

func (r *rowRequest) Type() uint16 { return uint16(r.op) }

func (r *rowRequest) Header() (txn.Row, bool) { return txn.Row{}, false }

func (r *rowRequest) Encode(body *[]byte) (int, error) {
	payload, err := r.row.ToJSON()
	if err != nil {
		return 0, fmt.Errorf("engine: encoding row for redo: %w", err)
	}

	nameLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(nameLen, uint16(len(r.table)))

	*body = append(*body, nameLen...)
	*body = append(*body, r.table...)
	*body = append(*body, payload...)
	return 1, nil
}

// DecodeRowBody is the inverse of rowRequest.Encode: it splits a redo
// record's body back into the table name and row JSON.
func DecodeRowBody(body []byte) (table string, row data.Row, err error) {
	if len(body) < 2 {
		return "", data.Row{}, fmt.Errorf("engine: redo body too short for table name length")
	}
	nameLen := int(binary.LittleEndian.Uint16(body[:2]))
	if len(body) < 2+nameLen {
		return "", data.Row{}, fmt.Errorf("engine: redo body too short for table name")
	}
	table = string(body[2 : 2+nameLen])

	row, err = data.FromJSON(body[2+nameLen:])
	if err != nil {
		return "", data.Row{}, fmt.Errorf("engine: decoding redo row: %w", err)
	}
	return table, row, nil
}
