package history

import "errors"

// Errors returned by the history package.
var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("history: record not found")

	// ErrInvalidRating is returned when a quality rating is outside 1-5.
	ErrInvalidRating = errors.New("history: rating must be between 1 and 5")
)
