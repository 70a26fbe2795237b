package storage

import (
	"errors"
	"fmt"
)

// ErrPositionNotFound is returned when no position exists for the given id.
var ErrPositionNotFound = errors.New("position not found")

// ErrPositionExists is returned when creating a position whose id is taken.
var ErrPositionExists = errors.New("position already exists")

// TransactionError indicates an atomic multi-record commit failed. No partial
// state is visible to subsequent reads; callers distinguish it from
// validation errors via errors.As.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
