package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups of unknown job ids.
var ErrNotFound = errors.New("job not found")

// InvalidTransitionError reports a state-changing call made against a job
// that is not in the expected prior state.
type InvalidTransitionError struct {
	ID   string
	From Status
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot %s while %s", e.ID, e.Op, e.From)
}

// StorageError wraps a durable write or read failure. The mutation that
// triggered it was not applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
