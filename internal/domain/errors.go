package domain

import "errors"

var (
	// ErrValidation marks a request missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup of a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionActive rejects a start while the phone number already has an active session.
	ErrSessionActive = errors.New("session already active for this number")

	// ErrCapExceeded rejects a start once the phone number has used its duration cap.
	ErrCapExceeded = errors.New("duration cap exceeded for this number")

	// ErrProvider marks a failed call to the external voice provider.
	ErrProvider = errors.New("voice provider failure")
)
