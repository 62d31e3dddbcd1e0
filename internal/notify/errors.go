package notify

import (
	"errors"
	"fmt"
)

// DeliveryError classifies a failed send attempt. Retryable failures are
// retried by the dispatcher, permanent ones drop the request immediately.
type DeliveryError struct {
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("retryable delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable wraps err as a transient delivery failure
func Retryable(err error) error {
	return &DeliveryError{Err: err, Retryable: true}
}

// Permanent wraps err as a non-retryable delivery failure
func Permanent(err error) error {
	return &DeliveryError{Err: err, Retryable: false}
}

// IsRetryable reports whether a send attempt is worth repeating. Timeouts
// and unclassified errors count as transient.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}
