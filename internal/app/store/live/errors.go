// internal/app/store/live/errors.go
package live

import "errors"

var (
	// ErrNotFound is returned by Backend.GetOnce for absent documents.
	// Delete never returns it: deleting an absent document succeeds.
	ErrNotFound = errors.New("document not found")

	// ErrSubscriptionClosed is returned when operating on a subscription
	// that has already reached the Closed state.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// PersistentError marks a watch failure as non-retryable. The Broker
// stops retrying immediately and surfaces the wrapped error as the
// subscription's terminal failure.
type PersistentError struct {
	Err error
}

func (e *PersistentError) Error() string {
	return "persistent subscription failure: " + e.Err.Error()
}

func (e *PersistentError) Unwrap() error {
	return e.Err
}

// IsPersistent reports whether err is marked non-retryable.
func IsPersistent(err error) bool {
	var pe *PersistentError
	return errors.As(err, &pe)
}
