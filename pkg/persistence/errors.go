package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionNotFound indicates no execution exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotificationNotFound indicates no sent notification exists for the
	// given id.
	ErrNotificationNotFound = errors.New("notification not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op  string // operation being performed, e.g. "SaveExecution"
	ID  string // record id if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return errors.Is(e.Err, target) }

// IsExecutionNotFound checks whether err indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsNotificationNotFound checks whether err indicates a missing notification.
func IsNotificationNotFound(err error) bool {
	return errors.Is(err, ErrNotificationNotFound)
}
