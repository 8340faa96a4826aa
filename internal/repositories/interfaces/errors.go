package interfaces

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConditionFailed is returned when a compare-and-set finds the
	// document in a state other than the expected one.
	ErrConditionFailed = errors.New("condition failed")
)
