// Package errors collects the semantic error types raised by the domain and
// storage layers. Callers type-switch or errors.As on these rather than
// matching error strings.
package errors

import "fmt"

// ConstraintError reports a schema constraint violated by a row mutation
// (not_null, unique, primary_key, auto_increment).
type ConstraintError struct {
	Table      string
	Column     string
	Value      interface{}
	Constraint string
	Reason     string
	RowIndex   int
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf(
		"constraint violation on %s.%s (constraint=%s, value=%v): %s",
		e.Table, e.Column, e.Constraint, e.Value, e.Reason,
	)
}

// ColumnNotFoundError reports a reference to a column absent from a table's
// schema.
type ColumnNotFoundError struct {
	TableName  string
	ColumnName string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found on table %q", e.ColumnName, e.TableName)
}

// NewNotNullViolation builds a ConstraintError for a missing required value.
func NewNotNullViolation(table, column string, rowIndex int) *ConstraintError {
	return &ConstraintError{
		Table:      table,
		Column:     column,
		Constraint: "not_null",
		Reason:     "missing required value",
		RowIndex:   rowIndex,
	}
}

// NewUniqueViolation builds a ConstraintError for a duplicate unique value.
func NewUniqueViolation(table, column string, value interface{}, rowIndex int) *ConstraintError {
	return &ConstraintError{
		Table:      table,
		Column:     column,
		Value:      value,
		Constraint: "unique",
		Reason:     "duplicate value",
		RowIndex:   rowIndex,
	}
}

// NewPrimaryKeyViolation builds a ConstraintError for a missing or duplicate
// primary key value.
func NewPrimaryKeyViolation(table, column string, value interface{}, reason string) *ConstraintError {
	return &ConstraintError{
		Table:      table,
		Column:     column,
		Value:      value,
		Constraint: "primary_key",
		Reason:     reason,
	}
}
