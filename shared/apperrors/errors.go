// Package apperrors defines the sentinel errors shared by both services.
// Handlers translate them to HTTP status codes with errors.Is; everything
// transient (circuit open, timeout, broker down) is kept distinct from
// permanent failures so callers can tell "retry later" from "never".
package apperrors

import "errors"

var (
	// ErrValidation covers malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrSameUserTransfer is returned when both parties of a transfer are the same user.
	ErrSameUserTransfer = errors.New("transfer between the same user is not allowed")

	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserInactive is returned when a party exists but is deactivated.
	ErrUserInactive = errors.New("user is inactive")

	// ErrServiceUnavailable is returned when the user service cannot be
	// reached: circuit open, timeout or transport failure. Retryable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrUpstream is returned on any other non-2xx answer from the user service.
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidState is returned on an illegal transaction status transition.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrNotConnected is returned when publishing while the broker connection is down.
	ErrNotConnected = errors.New("broker not connected")

	// ErrPublishFailed is returned when an event publish fails and the
	// event's policy aborts the triggering operation.
	ErrPublishFailed = errors.New("event publish failed")

	// ErrEmailTaken is returned when registering a user with an email already in use.
	ErrEmailTaken = errors.New("email already exists")
)

// IsRetryable reports whether the error is a transient infrastructure
// failure that an external retry layer may reasonably retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrNotConnected)
}
