package domain

import "errors"

var (
	// ErrInvalidCoordinate is returned when a latitude or longitude is missing,
	// non-finite, or outside its valid range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidHour is returned when a local hour falls outside [0,23].
	ErrInvalidHour = errors.New("invalid hour")

	// ErrNoDataTypes signals a reward computed over an empty data-type set.
	// The resolver never produces one, so this is a logic error in the caller.
	ErrNoDataTypes = errors.New("data type count must be positive")

	// ErrInvalidVisit signals a location record that cannot be accumulated
	// into stats (no data types or a negative reward).
	ErrInvalidVisit = errors.New("invalid visit")
)
