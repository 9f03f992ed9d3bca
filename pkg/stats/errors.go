package stats

import "errors"

var (
	// ErrConfiguration is returned when a threshold set or document is unusable
	ErrConfiguration = errors.New("invalid configuration")

	// ErrLengthMismatch is returned when aligned series differ in length
	ErrLengthMismatch = errors.New("series length mismatch")

	// ErrParameter is returned when a numeric parameter is out of range
	ErrParameter = errors.New("invalid parameter")

	// ErrEmptySeries is returned when a series has no observations
	ErrEmptySeries = errors.New("empty series")
)
