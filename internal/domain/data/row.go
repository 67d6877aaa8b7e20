package data

import (
	"encoding/json"
	"sync"
)

// Row represents a single table row
// Key = column name, Value = cell value
type Row struct {
	Data map[string]interface{}
	// mu is a placeholder for future row-level locking implementation
	// Currently unused but reserved for fine-grained concurrency control
	mu sync.Mutex
}

// NewRow creates a new Row with the given data
func NewRow(data map[string]interface{}) Row {
	return Row{
		Data: data,
	}
}

// Copy creates a deep copy of the row to prevent mutation
func (r Row) Copy() Row {
	copy := make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		copy[k] = v
	}
	return Row{
		Data: copy,
	}
}

// ToJSON serializes the row's data for use as a redo record body.
func (r Row) ToJSON() ([]byte, error) {
	return json.Marshal(r.Data)
}

// MarshalJSON flattens the row to its column map, so a []Row serializes as
// a plain array of row objects rather than {"Data": {...}} wrappers.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Data)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Row) UnmarshalJSON(raw []byte) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	r.Data = fields
	return nil
}

// FromJSON deserializes a row previously produced by ToJSON.
func FromJSON(raw []byte) (Row, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Row{}, err
	}
	return Row{Data: fields}, nil
}
