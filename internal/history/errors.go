package history

import "errors"

var (
	// ErrInvalidRange indicates a query range with end before start.
	ErrInvalidRange = errors.New("history: invalid time range")

	// ErrInvalidAggregation indicates an unknown aggregation function.
	ErrInvalidAggregation = errors.New("history: invalid aggregation")

	// ErrInvalidInterval indicates a non-positive bucket interval.
	ErrInvalidInterval = errors.New("history: invalid interval")
)
