package otp

import "errors"

var (
	// ErrInvalidIdentifier is returned for an empty identifier.
	ErrInvalidIdentifier = errors.New("otp: identifier is required")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("otp: invalid config")
)
