package history

import "context"

// Store persists call records. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save inserts the record, replacing any previous record with the
	// same session id.
	Save(ctx context.Context, rec Record) error

	// UpdateQuality sets the user rating on an existing record. Returns
	// ErrNotFound when the session id is unknown and ErrInvalidRating
	// when the rating is outside 1-5.
	UpdateQuality(ctx context.Context, sessionID string, rating int) error

	// List returns records ordered most recent first. limit caps the
	// page size (non-positive means no cap) and offset skips past
	// records.
	List(ctx context.Context, limit, offset int) ([]Record, error)
}
