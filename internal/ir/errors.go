package ir

import "errors"

var (
	// ErrMalformedKey is returned when a rule, profile or composite key
	// cannot be parsed or fails validation.
	ErrMalformedKey = errors.New("malformed key")

	// ErrUnknownEnum is returned when a severity or inheritance string is
	// not one of the recognized values.
	ErrUnknownEnum = errors.New("unknown enum value")

	// ErrInvalidDocument is returned by ActiveRule.Validate.
	ErrInvalidDocument = errors.New("invalid active rule document")
)
