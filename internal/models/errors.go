package models

import (
	"errors"
	"fmt"
)

// ValidationError is a caller-correctable input error. It names the offending
// field, its current value, the constraint violated, and an optional
// remediation hint surfaced to the user.
type ValidationError struct {
	Value      interface{}
	Field      string
	Constraint string
	Hint       string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s (current: %v)", e.Field, e.Constraint, e.Value)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

// NewValidationError builds a ValidationError without a remediation hint.
func NewValidationError(field string, value interface{}, constraint string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Constraint: constraint}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IntegrityError indicates a stored record disagrees with its derived state.
// These should never occur given correct callers; readers degrade to safe
// defaults instead of failing, so an IntegrityError is reported, not thrown,
// by the pure calculators.
type IntegrityError struct {
	PositionID string
	Detail     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("position %s: data integrity violation: %s", e.PositionID, e.Detail)
}
