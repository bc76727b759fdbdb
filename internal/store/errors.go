package store

import "fmt"

// DatabaseError wraps a storage failure with the operation that caused it.
// The indexer treats these as fatal to the current batch and retries from
// the last durable cursor.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func newDatabaseError(op string, err error) *DatabaseError {
	return &DatabaseError{Op: op, Err: err}
}
