package errors

import "fmt"

// ErrNoSession is returned when a cart mutation is attempted without an
// established session. It is raised locally and never reaches the network.
type ErrNoSession struct{}

func (e *ErrNoSession) Error() string {
	return "no active session"
}

// ErrUnauthorized is returned when the backend rejects the session credential
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// ErrNotFound is returned when a referenced resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation carries a validation message from the backend verbatim,
// e.g. a rejected quantity or exhausted stock.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrBackend is returned when a backend call fails to complete: the service
// is unreachable, the request timed out, or it answered with a 5xx.
type ErrBackend struct {
	Op  string
	Err error
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("cart backend %s: %v", e.Op, e.Err)
}

func (e *ErrBackend) Unwrap() error {
	return e.Err
}

// ErrSyncClosed is returned when an operation completes after the owning
// synchronizer has been closed. The result is discarded, never applied.
type ErrSyncClosed struct{}

func (e *ErrSyncClosed) Error() string {
	return "cart synchronizer is closed"
}

// ErrInvalidStateTransition is returned when an operation is attempted in a
// state that does not allow it
type ErrInvalidStateTransition struct {
	From string
	To   string
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}
